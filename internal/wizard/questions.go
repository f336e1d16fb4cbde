package wizard

import "arriendo/internal/models"

type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Question is one qualification question; answers are stored by ID.
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []Option `json:"options"`
}

var Questions = []Question{
	{
		ID:   models.QuestionIncome,
		Text: "¿Cuál es tu renta líquida mensual?",
		Options: []Option{
			{Value: "under_800k", Label: "Menos de $800.000"},
			{Value: "800k_1500k", Label: "$800.000 - $1.500.000"},
			{Value: "1500k_2500k", Label: "$1.500.000 - $2.500.000"},
			{Value: "over_2500k", Label: "Más de $2.500.000"},
		},
	},
	{
		ID:   models.QuestionGuaranty,
		Text: "¿Cuentas con aval?",
		Options: []Option{
			{Value: "yes", Label: "Sí"},
			{Value: "no", Label: "No"},
			{Value: "not_sure", Label: "No estoy seguro"},
		},
	},
	{
		ID:   models.QuestionMoveIn,
		Text: "¿Cuándo te gustaría mudarte?",
		Options: []Option{
			{Value: "immediately", Label: "Lo antes posible"},
			{Value: "1_month", Label: "Dentro de 1 mes"},
			{Value: "2_3_months", Label: "En 2 a 3 meses"},
			{Value: "exploring", Label: "Solo estoy explorando"},
		},
	},
}

func findQuestion(id string) (int, *Question) {
	for i := range Questions {
		if Questions[i].ID == id {
			return i, &Questions[i]
		}
	}
	return -1, nil
}

func (q Question) hasOption(value string) bool {
	for _, o := range q.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// Label returns the label of an option value.
func (q Question) Label(value string) string {
	for _, o := range q.Options {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}

// firstUnanswered returns the index of the first unanswered question or
// len(Questions) when all are answered.
func firstUnanswered(q models.RentalQualification) int {
	for i, question := range Questions {
		if q.Get(question.ID) == "" {
			return i
		}
	}
	return len(Questions)
}
