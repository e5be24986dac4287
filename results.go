package compiler

import (
	"encoding/json"
	"strings"

	"github.com/ronin-co/compiler/internal/cursor"
	"github.com/ronin-co/compiler/internal/rerr"
	"github.com/ronin-co/compiler/internal/sdata"
	"github.com/ronin-co/compiler/internal/sqlite"
	"github.com/ronin-co/compiler/internal/util"
)

// Record is one formatted record.
type Record = map[string]any

// Result is the formatted output of one input query.
type Result struct {
	// Amount is set for count queries.
	Amount *int64
	// Record and HasRecord carry the single-record shape; the record
	// itself is nil when nothing matched.
	Record    Record
	HasRecord bool
	// Records carries the multi-record shape.
	Records []Record
	// ModelFields maps field slugs to their types.
	ModelFields map[string]string
	// MoreBefore and MoreAfter are pagination cursors into the
	// neighboring pages, when they exist.
	MoreBefore string
	MoreAfter  string
	// Models groups the per-model results of an expanded all query,
	// keyed by plural slug.
	Models map[string]*Result
}

// FormatResults reconstructs nested records from the raw rows the
// statements returned. rawResults aligns with Statements; each inner
// row is either a positional value list or an object keyed by column
// name.
func (t *Transaction) FormatResults(rawResults [][]any) ([]Result, error) {
	// Keep only the results of statements that produce output.
	var returning [][]any
	for i, stmt := range t.Statements {
		if !stmt.Returning {
			continue
		}
		if i < len(rawResults) {
			returning = append(returning, rawResults[i])
		} else {
			returning = append(returning, nil)
		}
	}

	var out []Result
	slot := 0
	take := func() []any {
		if slot >= len(returning) {
			return nil
		}
		rows := returning[slot]
		slot++
		return rows
	}

	for _, info := range t.queries {
		if len(info.compiled) == 0 {
			// Schema-only DDL produces no rows.
			out = append(out, Result{})
			continue
		}
		if info.all {
			grouped := Result{Models: map[string]*Result{}}
			for _, compiled := range info.compiled {
				result, err := formatOne(compiled, take())
				if err != nil {
					return nil, err
				}
				grouped.Models[compiled.Model.PluralSlug] = &result
			}
			out = append(out, grouped)
			continue
		}
		result, err := formatOne(info.compiled[0], take())
		if err != nil {
			return nil, err
		}
		out = append(out, result)
	}
	return out, nil
}

func formatOne(compiled *sqlite.Compiled, rows []any) (Result, error) {
	result := Result{ModelFields: modelFields(compiled)}

	if compiled.Count {
		amount := countAmount(rows)
		result.Amount = &amount
		return result, nil
	}

	records, err := foldRows(compiled, rows)
	if err != nil {
		return Result{}, err
	}

	if compiled.Single {
		result.HasRecord = true
		if len(records) > 0 {
			result.Record = records[0]
			stripExcluded(compiled, records[:1])
		}
		return result, nil
	}

	records, result.MoreBefore, result.MoreAfter = paginate(compiled, records)
	stripExcluded(compiled, records)
	result.Records = records
	return result, nil
}

func modelFields(compiled *sqlite.Compiled) map[string]string {
	fields := map[string]string{}
	for i := range compiled.Model.Fields {
		f := &compiled.Model.Fields[i]
		fields[f.Slug] = string(f.Type)
	}
	return fields
}

func countAmount(rows []any) int64 {
	if len(rows) == 0 {
		return 0
	}
	switch row := rows[0].(type) {
	case []any:
		if len(row) > 0 {
			return toInt64(row[0])
		}
	case map[string]any:
		return toInt64(row["amount"])
	}
	return 0
}

func toInt64(value any) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

// foldRows builds one record per row along the selected-field list,
// then merges rows that repeat a record id because of array joins.
func foldRows(compiled *sqlite.Compiled, rows []any) ([]Record, error) {
	var records []Record
	index := map[any]Record{}

	for _, raw := range rows {
		record, err := buildRecord(compiled, raw)
		if err != nil {
			return nil, err
		}
		id, hasID := record["id"]
		if hasID && id != nil {
			if existing, ok := index[id]; ok {
				mergeRecord(existing, record)
				continue
			}
			index[id] = record
		}
		records = append(records, record)
	}
	return records, nil
}

func buildRecord(compiled *sqlite.Compiled, raw any) (Record, error) {
	record := Record{}
	var skip []string

	for i, sf := range compiled.Selected {
		value, err := columnValue(raw, i, sf)
		if err != nil {
			return nil, err
		}
		value = deserialize(sf.Type, value)

		if skipped(skip, sf.MountingPath) {
			continue
		}

		// A null id inside a nested path marks a missing joined
		// record: the parent mounts empty and the walk stops there.
		if sf.Slug == "id" && value == nil && strings.Contains(sf.MountingPath, ".") {
			parent := parentPath(sf.MountingPath)
			segments := util.SplitPath(parent)
			last := util.ParseSegment(segments[len(segments)-1])
			target := last.Key
			if base := strings.Join(segments[:len(segments)-1], "."); base != "" {
				target = base + "." + target
			}
			if last.Array {
				util.SetProperty(record, target, []any{})
			} else {
				util.SetProperty(record, target, nil)
			}
			skip = append(skip, parent+".")
			continue
		}

		util.SetProperty(record, sf.MountingPath, value)
	}
	return record, nil
}

func columnValue(raw any, index int, sf sqlite.SelectedField) (any, error) {
	switch row := raw.(type) {
	case []any:
		if index < len(row) {
			return row[index], nil
		}
		return nil, nil
	case map[string]any:
		if v, ok := row[sf.MountingPath]; ok {
			return v, nil
		}
		return row[sf.Slug], nil
	}
	return nil, rerr.New(rerr.InvalidFieldValue,
		"rows must be value lists or objects keyed by column name")
}

// deserialize converts a raw column value into its record shape:
// json and blob columns parse, booleans cast truthily, everything
// else passes through.
func deserialize(fieldType sdata.FieldType, value any) any {
	if value == nil {
		return nil
	}
	switch fieldType {
	case sdata.TypeJSON, sdata.TypeBlob:
		if s, ok := value.(string); ok {
			var parsed any
			if err := json.Unmarshal([]byte(s), &parsed); err == nil {
				return parsed
			}
		}
		return value
	case sdata.TypeBoolean:
		switch v := value.(type) {
		case bool:
			return v
		case int:
			return v != 0
		case int64:
			return v != 0
		case float64:
			return v != 0
		case string:
			return v != "" && v != "0" && v != "false"
		}
		return value != nil
	}
	return value
}

func skipped(prefixes []string, path string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func parentPath(path string) string {
	segments := util.SplitPath(path)
	return strings.Join(segments[:len(segments)-1], ".")
}

// mergeRecord folds a repeated row of the same record into the
// accumulated one: joined arrays merge element-wise by id, nested
// maps merge recursively, and already-set scalars win.
func mergeRecord(dst, src Record) {
	for key, value := range src {
		switch sv := value.(type) {
		case []any:
			arr, _ := dst[key].([]any)
			for _, el := range sv {
				em, ok := el.(map[string]any)
				if !ok {
					arr = append(arr, el)
					continue
				}
				merged := false
				if id, hasID := em["id"]; hasID && id != nil {
					for _, existing := range arr {
						if dm, ok := existing.(map[string]any); ok && dm["id"] == id {
							mergeRecord(dm, em)
							merged = true
							break
						}
					}
				}
				if !merged {
					arr = append(arr, el)
				}
			}
			dst[key] = arr
		case map[string]any:
			if dm, ok := dst[key].(map[string]any); ok {
				mergeRecord(dm, sv)
				continue
			}
			if _, exists := dst[key]; !exists || dst[key] == nil {
				dst[key] = sv
			}
		default:
			if _, exists := dst[key]; !exists {
				dst[key] = value
			}
		}
	}
}

// paginate trims the lookahead row of a limited query and derives the
// pagination cursors from the boundary records.
func paginate(compiled *sqlite.Compiled, records []Record) ([]Record, string, string) {
	var moreBefore, moreAfter string

	if compiled.LimitedTo > 0 && len(records) > compiled.LimitedTo {
		if compiled.HasBefore {
			records = records[1:]
			moreBefore = recordCursor(compiled, records[0])
		} else {
			records = records[:len(records)-1]
			moreAfter = recordCursor(compiled, records[len(records)-1])
		}
	}
	if len(records) > 0 {
		// A provided cursor proves records exist on its own side.
		if compiled.HasAfter {
			moreBefore = recordCursor(compiled, records[0])
		}
		if compiled.HasBefore {
			moreAfter = recordCursor(compiled, records[len(records)-1])
		}
	}
	return records, moreBefore, moreAfter
}

// recordCursor encodes the boundary record's ordered-by values plus
// its id.
func recordCursor(compiled *sqlite.Compiled, record Record) string {
	var values []any
	for _, entry := range compiled.Order {
		if entry.Expression {
			continue
		}
		v, _ := util.GetProperty(record, entry.Slug)
		values = append(values, v)
	}
	id, _ := util.GetProperty(record, "id")
	values = append(values, id)
	return cursor.Encode(values)
}

// stripExcluded removes the internally selected fields from the
// exposed records.
func stripExcluded(compiled *sqlite.Compiled, records []Record) {
	for _, sf := range compiled.Selected {
		if !sf.Excluded {
			continue
		}
		for _, record := range records {
			util.DeleteProperty(record, sf.MountingPath)
		}
	}
}
