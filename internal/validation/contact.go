package validation

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"

	"arriendo/internal/models"

	"github.com/go-playground/validator/v10"
)

// Contact field ids in the order the contact step asks for them.
const (
	FieldName  = "name"
	FieldPhone = "phone"
	FieldRUT   = "rut"
	FieldEmail = "email"
)

var ContactFields = []string{FieldName, FieldPhone, FieldRUT, FieldEmail}

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		v := validator.New()
		// ошибки должны ссылаться на json-имена полей
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		if err := v.RegisterValidation("rut", rutField); err != nil {
			panic(err)
		}
		if err := v.RegisterValidation("clphone", phoneField); err != nil {
			panic(err)
		}
		validate = v
	})
	return validate
}

// FieldErrors maps a contact field id to a user-facing message.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return strings.Join(parts, "; ")
}

// ValidateContact checks the contact data and returns nil when it is valid.
func ValidateContact(c models.ContactData) FieldErrors {
	c = Normalize(c)
	err := instance().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{"": err.Error()}
	}

	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		if _, seen := out[fe.Field()]; seen {
			continue
		}
		out[fe.Field()] = message(fe.Field(), fe.Tag())
	}
	return out
}

// ValidateField returns the message for a single field, empty when valid.
func ValidateField(c models.ContactData, field string) string {
	return ValidateContact(c)[field]
}

// Normalize trims the input and brings the RUT to its canonical form.
func Normalize(c models.ContactData) models.ContactData {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)
	if rut, ok := NormalizeRUT(c.RUT); ok {
		c.RUT = rut
	} else {
		c.RUT = strings.TrimSpace(c.RUT)
	}
	return c
}

func message(field, tag string) string {
	switch field {
	case FieldName:
		switch tag {
		case "required":
			return "Ingresa tu nombre."
		case "min":
			return "El nombre debe tener al menos 2 caracteres."
		default:
			return "El nombre es demasiado largo."
		}
	case FieldEmail:
		return "Ingresa un correo electrónico válido."
	case FieldPhone:
		if tag == "required" {
			return "Ingresa tu teléfono."
		}
		return "Ingresa un teléfono chileno válido (ej: +56 9 1234 5678)."
	case FieldRUT:
		if tag == "required" {
			return "Ingresa tu RUT."
		}
		return "El RUT ingresado no es válido."
	}
	return "Campo inválido."
}

func rutField(fl validator.FieldLevel) bool {
	return ValidRUT(fl.Field().String())
}

func phoneField(fl validator.FieldLevel) bool {
	return ValidPhone(fl.Field().String())
}
