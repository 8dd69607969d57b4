package google

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"budgetflow/internal/core"
)

// parseIncomePlans converts a values matrix (as returned by Sheets API) into
// income sources. The first row holds headers: Name, Reliability, Account,
// Day, Active and Jan..Dec. Account, Day and Active are optional columns.
func parseIncomePlans(values [][]interface{}) ([]core.IncomeSource, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := toStrings(values[0])
	colName := indexOf(headers, "Name")
	colReliability := indexOf(headers, "Reliability")
	colAccount := indexOf(headers, "Account")
	colDay := indexOf(headers, "Day")
	colActive := indexOf(headers, "Active")

	var colMonths [12]int
	missing := make([]string, 0)
	if colName == -1 {
		missing = append(missing, "Name")
	}
	if colReliability == -1 {
		missing = append(missing, "Reliability")
	}
	for i, h := range core.MonthAbbreviations {
		colMonths[i] = indexOf(headers, h)
		if colMonths[i] == -1 {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unexpected income plan header: missing %s; got headers=%v", strings.Join(missing, ","), headers)
	}

	var out []core.IncomeSource
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		name := safeGet(row, colName)
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		reliability, err := core.ParseReliability(safeGet(row, colReliability))
		if err != nil {
			return nil, fmt.Errorf("row %d (%s): %w", i+1, name, err)
		}
		src := core.IncomeSource{
			ID:          sourceID(name),
			Name:        name,
			Reliability: reliability,
			AccountID:   safeGet(row, colAccount),
			Active:      parseActive(safeGet(row, colActive)),
		}
		if day := safeGet(row, colDay); day != "" {
			if _, err := fmt.Sscanf(day, "%d", &src.ExpectedDay); err != nil {
				return nil, fmt.Errorf("row %d (%s): invalid day %q", i+1, name, day)
			}
		}
		for m, col := range colMonths {
			cell := safeGet(row, col)
			if cell == "" {
				continue
			}
			amount, err := core.ParseAmount(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d (%s) %s: %w", i+1, name, core.MonthAbbreviations[m], err)
			}
			src.Amounts[m] = amount
		}
		if err := src.Validate(); err != nil {
			return nil, fmt.Errorf("row %d (%s): %w", i+1, name, err)
		}
		out = append(out, src)
	}
	return out, nil
}

// sourceID derives a stable id from the plan name so rows survive reordering.
func sourceID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("income-source:"+strings.ToLower(name))).String()
}

func parseActive(s string) bool {
	switch strings.ToLower(s) {
	case "", "true", "yes", "y", "1", "x":
		return true
	default:
		return false
	}
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
