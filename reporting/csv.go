package reporting

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

// CSV renders the client report with the labels of the original paper
// exports. Sections are separated by blank rows.
func (report *ClientReport) CSV() ([]byte, error) {
	rows := [][]string{
		{"Rapport Client", report.Client},
		{"Email", report.Email},
		{"Téléphone", report.Phone},
		{"Statut", report.Status},
		{"Niveau de priorité", report.Priority},
		{"Budget", report.Budget},
		{"Score de conversion", report.Conversion},
		{"Date d'inscription", report.Registered},
	}
	if len(report.Tags) > 0 {
		rows = append(rows, []string{"Tags", joinList(report.Tags)})
	}

	if len(report.Interests) > 0 {
		rows = append(rows, []string{""})
		rows = append(rows, []string{"Historique des Intérêts (10 derniers)"})
		rows = append(rows, []string{"Propriété", "Niveau d'intérêt", "Date"})
		for _, interest := range report.Interests {
			rows = append(rows, []string{interest.Property, interest.Level, interest.Date})
		}
	}

	if len(report.Interactions) > 0 {
		rows = append(rows, []string{""})
		rows = append(rows, []string{"Historique des Interactions (15 dernières)"})
		rows = append(rows, []string{"Date", "Type", "Agent", "Statut"})
		for _, interaction := range report.Interactions {
			status := "planifiée"
			if interaction.Completed {
				status = "complétée"
			}
			rows = append(rows, []string{interaction.Date, interaction.Kind, interaction.Agent, status})
		}
	}

	if len(report.Notes) > 0 {
		rows = append(rows, []string{""})
		rows = append(rows, []string{"Notes Internes (10 dernières)"})
		rows = append(rows, []string{"Date", "Auteur", "Note"})
		for _, note := range report.Notes {
			body := note.Body
			if note.Important {
				body = "[IMPORTANT] " + body
			}
			rows = append(rows, []string{note.Date, note.Author, body})
		}
	}

	return renderCSV(rows)
}

// CSV renders the performance metrics as a label and value table.
func (performance *AgentPerformance) CSV() ([]byte, error) {
	rows := [][]string{
		{"Rapport de Performance", performance.Agent},
		{"Période", performance.From + " - " + performance.To},
		{""},
		{"Métrique", "Valeur"},
		{"Interactions totales", strconv.Itoa(performance.TotalInteractions)},
		{"Interactions complétées", strconv.Itoa(performance.CompletedInteractions)},
		{"Taux de complétion", performance.CompletionRate},
		{"Clients gérés", strconv.Itoa(performance.ClientsManaged)},
		{"Leads assignés", strconv.Itoa(performance.LeadsAssigned)},
		{"Leads convertis", strconv.Itoa(performance.LeadsConverted)},
		{"Taux de conversion", performance.ConversionRate},
		{"Intérêts propriétés générés", strconv.Itoa(performance.InterestsGenerated)},
	}
	return renderCSV(rows)
}

// CSV renders one row per agent plus the team total.
func (overview *AgencyOverview) CSV() ([]byte, error) {
	rows := [][]string{
		{"Rapport d'Agence"},
		{"Période", overview.From + " - " + overview.To},
		{""},
		{"Agent", "Interactions", "Clients", "Leads Convertis", "Taux Conversion"},
	}
	for _, agent := range overview.Agents {
		rows = append(rows, []string{
			agent.Agent,
			strconv.Itoa(agent.TotalInteractions),
			strconv.Itoa(agent.ClientsManaged),
			strconv.Itoa(agent.LeadsConverted),
			agent.ConversionRate,
		})
	}
	rows = append(rows, []string{
		"Total",
		strconv.Itoa(overview.Totals.Interactions),
		strconv.Itoa(overview.Totals.ClientsManaged),
		strconv.Itoa(overview.Totals.LeadsConverted),
		overview.Totals.ConversionRate,
	})
	return renderCSV(rows)
}

func renderCSV(rows [][]string) ([]byte, error) {
	var buffer bytes.Buffer
	writer := csv.NewWriter(&buffer)
	if err := writer.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("writing csv : %w", err)
	}
	return buffer.Bytes(), nil
}
