package fleet

import (
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// printSnapshot renders the fleet's current state as the 60s tabular
// snapshot of §7: tag, order id, price, deal id, task id, task uptime,
// status.
func printSnapshot(rows []tableRow) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"TAG", "ORDER ID", "PRICE", "DEAL ID", "TASK ID", "UPTIME (s)", "STATUS"})
	table.SetAutoWrapText(false)

	for _, r := range rows {
		table.Append([]string{r.Tag, r.OrderID, r.Price, r.DealID, r.TaskID, strconv.Itoa(r.TaskUptime), r.Status})
	}

	table.Render()
}

type tableRow struct {
	Tag        string
	OrderID    string
	Price      string
	DealID     string
	TaskID     string
	TaskUptime int
	Status     string
}
