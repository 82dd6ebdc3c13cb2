package lineage

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"github.com/Simbamon/ML-Flow/internal/tracking"
)

// Report prints ds followed by its name, digest, profile and schema, then
// a table of the schema's columns when it is a column spec.
func Report(w io.Writer, ds tracking.DatasetEntity) error {
	_, err := fmt.Fprintf(w, "%s\nDataset name: %s\nDataset digest: %s\nDataset profile: %s\nDataset schema: %s\n",
		ds, ds.Name, ds.Digest, ds.Profile, ds.Schema)
	if err != nil {
		return errors.Wrap(err, "Unable to write report")
	}

	var schema struct {
		Columns []struct {
			Type     string `json:"type"`
			Name     string `json:"name"`
			Required bool   `json:"required"`
		} `json:"mlflow_colspec"`
	}
	if ds.Schema == "" || json.Unmarshal([]byte(ds.Schema), &schema) != nil || len(schema.Columns) == 0 {
		return nil
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Column", "Type", "Required"})
	table.SetAutoWrapText(false)
	for i, c := range schema.Columns {
		table.Append([]string{strconv.Itoa(i), c.Name, c.Type, strconv.FormatBool(c.Required)})
	}
	table.Render()
	return nil
}
