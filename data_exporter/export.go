package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"github.com/xor-shift/rngserver/ingest"
	"io"
	"text/template"
)

func outputFileName(outTemplate string, sessionNo uint64, format string) (string, error) {
	tmpl, err := template.New("").Parse(outTemplate)
	if err != nil {
		return "", fmt.Errorf("error while creating the output filename template: %w", err)
	}

	buf := bytes.Buffer{}

	templateArguments := struct {
		SessionNo uint64
		Format    string
	}{
		SessionNo: sessionNo,
		Format:    format,
	}

	if err = tmpl.Execute(&buf, templateArguments); err != nil {
		return "", fmt.Errorf("error while executing the output filename template: %w", err)
	}

	return buf.String(), nil
}

func writeCSV(w io.Writer, rows []ingest.DrawRow, columnTitles bool) error {
	csvWriter := csv.NewWriter(w)

	if columnTitles {
		if err := csvWriter.Write([]string{"Draw Order", "First Step", "Distribution", "Insert Time", "Value"}); err != nil {
			return err
		}
	}

	for _, row := range rows {
		if err := csvWriter.Write([]string{
			fmt.Sprintf("%d", row.Order),
			fmt.Sprintf("%d", row.FirstStep),
			string(row.Distribution),
			fmt.Sprintf("%d", row.InsertTime.Unix()),
			row.Value(),
		}); err != nil {
			return err
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

type jsonRow struct {
	Order        uint64          `json:"order"`
	FirstStep    uint64          `json:"firstStep"`
	Distribution string          `json:"dist"`
	InsertTime   int64           `json:"insertTime"`
	Value        json.RawMessage `json:"value"`
}

func writeJSON(w io.Writer, rows []ingest.DrawRow) error {
	out := make([]jsonRow, 0, len(rows))

	for _, row := range rows {
		// u64 values exceed 2^53, keep them as literal numbers
		out = append(out, jsonRow{
			Order:        row.Order,
			FirstStep:    row.FirstStep,
			Distribution: string(row.Distribution),
			InsertTime:   row.InsertTime.Unix(),
			Value:        json.RawMessage(row.Value()),
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
