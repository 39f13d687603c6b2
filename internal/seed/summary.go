package seed

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// WriteSummary renders the catalog as a table in registration order.
func (m *Master) WriteSummary(w io.Writer) {
	fmt.Fprintf(w, "Seed policy: %s\n", m.policy.Describe())

	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"ENGINE", "SEED", "FROZEN", "PHASE", "LAST EVENT SEED"})
	tw.SetAutoFormatHeaders(false)
	for rec := range m.Records() {
		tw.Append([]string{
			rec.ID.String(),
			seedText(rec.Seed),
			strconv.FormatBool(rec.Frozen),
			rec.FirstSeen.String(),
			seedText(rec.EventSeed),
		})
	}
	tw.Render()
}

func seedText(s Seed) string {
	if s == InvalidSeed {
		return "-"
	}
	return strconv.FormatInt(int64(s), 10)
}
