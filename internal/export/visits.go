package export

import (
	"fmt"
	"io"
	"time"

	"arriendo/internal/models"

	"github.com/xuri/excelize/v2"
)

const SheetName = "Visitas"

var headers = []string{"Fecha", "Hora", "Propiedad", "Nombre", "Teléfono", "RUT", "Correo", "Canal", "Estado", "Creada"}

// Visits builds a workbook with one row per visit. The caller closes the file.
func Visits(visits []*models.Visit, loc *time.Location) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
		_ = f.SetCellStyle(SheetName, cell, cell, headerStyle)
	}

	for i, v := range visits {
		row := i + 2
		start := v.StartTime.In(loc)
		var c models.ContactData
		if v.Contact != nil {
			c = *v.Contact
		}
		values := []any{
			start.Format("02.01.2006"),
			start.Format(models.ClockLayout),
			v.ListingID,
			c.Name,
			c.Phone,
			c.RUT,
			c.Email,
			v.Channel,
			string(v.Status),
			v.CreatedAt.In(loc).Format("02.01.2006 15:04"),
		}
		for col, val := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(SheetName, cell, val)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "B", 12)
	_ = f.SetColWidth(SheetName, "C", "G", 22)
	_ = f.SetColWidth(SheetName, "H", "J", 16)
	_ = f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	return f, nil
}

// WriteVisits streams the workbook built by Visits to w.
func WriteVisits(w io.Writer, visits []*models.Visit, loc *time.Location) error {
	f, err := Visits(visits, loc)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}
