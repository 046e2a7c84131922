// Package optimize compresses dashboard payloads before they are sent to the
// model, trading raw fidelity for a much smaller token footprint.
package optimize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type jsonObject = *orderedmap.OrderedMap[string, interface{}]

var (
	federatedPrefixRe = regexp.MustCompile(`\[federated\.([^]]+)]`)
	longIDRe          = regexp.MustCompile(`_\d{15,}`)
)

// Columns that are never folded into the constant-value block.
const (
	colMeasureNames  = "Measure Names"
	colMeasureValues = "Measure Values"
	colDateSelector  = "Date Selector Axis"
)

// Optimize rewrites a data payload into a compact textual form. Non-JSON
// input is returned unchanged; the function never fails.
func Optimize(data string) string {
	parsed, err := parseOrdered([]byte(data))
	if err != nil {
		return data
	}
	return optimizeValue(parsed)
}

// parseOrdered decodes JSON with object key order preserved at every level.
// The payload is wrapped in an envelope object so arrays and scalars ride
// through the ordered-map decoder too.
func parseOrdered(data []byte) (interface{}, error) {
	wrapped := make([]byte, 0, len(data)+6)
	wrapped = append(wrapped, `{"v":`...)
	wrapped = append(wrapped, data...)
	wrapped = append(wrapped, '}')

	om := orderedmap.New[string, interface{}]()
	if err := om.UnmarshalJSON(wrapped); err != nil {
		return nil, err
	}
	v, _ := om.Get("v")
	return v, nil
}

func optimizeValue(data interface{}) string {
	if obj, ok := data.(jsonObject); ok {
		if worksheets, ok := worksheetList(obj); ok {
			return optimizeDashboard(obj, worksheets)
		}
		return compactJSON(obj)
	}

	if list, ok := data.([]interface{}); ok {
		if allPrimitives(list) {
			return formatPrimitiveList(list)
		}
		return compactJSON(list)
	}

	return formatScalar(data)
}

func worksheetList(obj jsonObject) ([]interface{}, bool) {
	v, ok := obj.Get("worksheets")
	if !ok {
		return nil, false
	}
	list, ok := v.([]interface{})
	return list, ok
}

func optimizeDashboard(obj jsonObject, worksheets []interface{}) string {
	dashboardName := stringField(obj, "dashboardName", "Dashboard")

	var out strings.Builder
	fmt.Fprintf(&out, "# %s\n\n", dashboardName)

	for _, ws := range worksheets {
		wsObj, _ := ws.(jsonObject)
		wsName := stringField(wsObj, "name", "Unnamed Worksheet")

		fmt.Fprintf(&out, "## %s\n", wsName)
		out.WriteString("\n**Processing Notes:**\n")
		out.WriteString("- Data has been optimized to reduce token usage\n")
		out.WriteString("- Measure names have been abbreviated\n")
		out.WriteString("- Numerical values have been rounded for efficiency\n\n")

		var wsData interface{}
		if wsObj != nil {
			wsData, _ = wsObj.Get("data")
		}

		dataObj, ok := wsData.(jsonObject)
		if !ok {
			fmt.Fprintf(&out, "```\n%s\n```\n\n", compactJSON(wsData))
			continue
		}

		rows, ok := rowList(dataObj)
		if !ok {
			fmt.Fprintf(&out, "```json\n%s\n```\n\n", compactJSON(dataObj))
			continue
		}

		writeOptimizedRows(&out, rows)
	}

	return out.String()
}

func rowList(dataObj jsonObject) ([]interface{}, bool) {
	v, ok := dataObj.Get("rows")
	if !ok {
		return nil, false
	}
	list, ok := v.([]interface{})
	return list, ok
}

// prefixAlias maps one federated column prefix to its short alias.
type prefixAlias struct {
	prefix string
	alias  string
}

func writeOptimizedRows(out *strings.Builder, rows []interface{}) {
	prefixes := collectFederatedPrefixes(rows)
	constKeys, constValues := collectConstants(rows)

	optimized := make([]jsonObject, 0, len(rows))
	allObjects := true
	var passthrough []interface{}
	for _, r := range rows {
		row, ok := r.(jsonObject)
		if !ok {
			allObjects = false
			passthrough = append(passthrough, r)
			continue
		}
		optimized = append(optimized, optimizeRow(row, prefixes, constValues))
	}

	useCSV := allObjects && len(optimized) > 5
	if useCSV {
		for _, row := range optimized {
			if row.Len() > 3 {
				useCSV = false
				break
			}
		}
	}

	if len(prefixes) > 0 {
		out.WriteString("\n**Abbreviated Column Prefixes:**\n")
		for _, p := range prefixes {
			fmt.Fprintf(out, "- `%s`: %s\n", p.alias, p.prefix)
		}
	}

	if len(constKeys) > 0 {
		out.WriteString("\n**Constant Values (apply to all rows):**\n")
		for _, key := range constKeys {
			fmt.Fprintf(out, "- `%s`: %s\n", key, formatScalar(constValues[key]))
		}
	}

	fmt.Fprintf(out, "\n*Dataset sampled: showing %d rows. *\n\n", len(optimized)+len(passthrough))

	if useCSV && len(optimized) > 0 {
		out.WriteString("```csv\n")
		out.WriteString(renderCSV(optimized))
		out.WriteString("```\n\n")
		return
	}

	combined := make([]interface{}, 0, len(optimized)+len(passthrough))
	for _, row := range optimized {
		combined = append(combined, row)
	}
	combined = append(combined, passthrough...)

	wrapper := orderedmap.New[string, interface{}]()
	wrapper.Set("rows", combined)
	fmt.Fprintf(out, "```json\n%s\n```\n\n", compactJSON(wrapper))
}

// collectFederatedPrefixes scans Measure Names values for [federated.<id>]
// prefixes and assigns F1, F2, ... aliases in first-seen order.
func collectFederatedPrefixes(rows []interface{}) []prefixAlias {
	var prefixes []prefixAlias
	seen := map[string]bool{}

	if len(rows) == 0 {
		return nil
	}
	if _, ok := rows[0].(jsonObject); !ok {
		return nil
	}

	for _, r := range rows {
		row, ok := r.(jsonObject)
		if !ok {
			continue
		}
		for pair := row.Oldest(); pair != nil; pair = pair.Next() {
			value, isStr := pair.Value.(string)
			if pair.Key != colMeasureNames || !isStr {
				continue
			}
			match := federatedPrefixRe.FindString(value)
			if match != "" && !seen[match] {
				seen[match] = true
				prefixes = append(prefixes, prefixAlias{
					prefix: match,
					alias:  fmt.Sprintf("F%d", len(prefixes)+1),
				})
			}
		}
	}
	return prefixes
}

// collectConstants finds columns whose value is identical in every row. The
// measure and date-axis columns are exempt so rows keep their shape.
func collectConstants(rows []interface{}) ([]string, map[string]interface{}) {
	if len(rows) == 0 {
		return nil, nil
	}
	sample, ok := rows[0].(jsonObject)
	if !ok {
		return nil, nil
	}

	var keys []string
	values := map[string]interface{}{}

	for pair := sample.Oldest(); pair != nil; pair = pair.Next() {
		key := pair.Key
		if key == colMeasureNames || key == colMeasureValues || key == colDateSelector {
			continue
		}

		isConstant := true
		for _, r := range rows[1:] {
			row, ok := r.(jsonObject)
			if !ok {
				isConstant = false
				break
			}
			v, present := row.Get(key)
			if !present || !jsonEqual(v, pair.Value) {
				isConstant = false
				break
			}
		}

		if isConstant {
			keys = append(keys, key)
			values[key] = pair.Value
		}
	}
	return keys, values
}

func optimizeRow(row jsonObject, prefixes []prefixAlias, constants map[string]interface{}) jsonObject {
	optimized := orderedmap.New[string, interface{}]()

	for pair := row.Oldest(); pair != nil; pair = pair.Next() {
		key, value := pair.Key, pair.Value
		if _, isConst := constants[key]; isConst {
			continue
		}

		if key == colMeasureNames {
			if s, ok := value.(string); ok {
				abbreviated := s
				for _, p := range prefixes {
					abbreviated = strings.ReplaceAll(abbreviated, p.prefix, p.alias)
				}
				optimized.Set(key, longIDRe.ReplaceAllString(abbreviated, "_ID"))
				continue
			}
		}

		if key == colMeasureValues {
			if n, ok := value.(float64); ok {
				optimized.Set(key, roundMeasure(n))
				continue
			}
		}

		optimized.Set(key, value)
	}
	return optimized
}

// roundMeasure applies magnitude-tiered rounding: extreme magnitudes go to
// scientific notation, everything else keeps just enough decimal places.
func roundMeasure(v float64) interface{} {
	abs := math.Abs(v)
	switch {
	case abs < 0.001 || abs > 1000000:
		return fmt.Sprintf("%.2e", v)
	case abs < 0.1:
		return roundTo(v, 4)
	case abs < 1:
		return roundTo(v, 3)
	case abs < 10:
		return roundTo(v, 2)
	default:
		return int64(math.Round(v))
	}
}

func roundTo(v float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(v*shift) / shift
}

func renderCSV(rows []jsonObject) string {
	var headers []string
	for pair := rows[0].Oldest(); pair != nil; pair = pair.Next() {
		headers = append(headers, pair.Key)
	}

	var csv strings.Builder
	quoted := make([]string, len(headers))
	for i, h := range headers {
		quoted[i] = `"` + h + `"`
	}
	csv.WriteString(strings.Join(quoted, ","))
	csv.WriteString("\n")

	for _, row := range rows {
		values := make([]string, len(headers))
		for i, header := range headers {
			v, ok := row.Get(header)
			if !ok {
				v = ""
			}
			if s, isStr := v.(string); isStr {
				values[i] = `"` + s + `"`
			} else {
				values[i] = formatScalar(v)
			}
		}
		csv.WriteString(strings.Join(values, ","))
		csv.WriteString("\n")
	}
	return csv.String()
}

func allPrimitives(list []interface{}) bool {
	for _, item := range list {
		switch item.(type) {
		case string, float64, bool:
		default:
			return false
		}
	}
	return true
}

func formatPrimitiveList(list []interface{}) string {
	parts := make([]string, len(list))
	for i, item := range list {
		parts[i] = formatScalar(item)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// formatScalar renders a decoded JSON scalar without quoting.
func formatScalar(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// jsonEqual compares two decoded JSON values structurally.
func jsonEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		ab, errA := json.Marshal(a)
		bb, errB := json.Marshal(b)
		return errA == nil && errB == nil && bytes.Equal(ab, bb)
	}
}

func compactJSON(v interface{}) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func stringField(obj jsonObject, key, fallback string) string {
	if obj == nil {
		return fallback
	}
	if v, ok := obj.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}
