package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
)

// Stage is one step of an aggregation pipeline: a JSON document naming an
// operator ($match, $project, $group, $lookup, $unwind) and its arguments.
// Pipelines are not general-purpose query — callers construct stages
// statically for the two reporting shapes the analytics package needs.
type Stage map[string]any

// Value is the loosely-typed result an aggregation pipeline produces: a list
// of flat documents.
type Value []map[string]any

// Aggregate runs an ordered pipeline against a named collection and returns
// the accumulated result. Execution is in-memory over the full collection;
// this trades scale for simplicity, matching the facade's documented scope
// (reporting over SBOM-sized collections, not ad-hoc analytics at large N).
func (p *Pool) Aggregate(ctx context.Context, collection string, pipeline []Stage) (Value, error) {
	docs, err := p.fetchDocs(ctx, collection)
	if err != nil {
		return nil, err
	}

	current := docs
	for _, stage := range pipeline {
		for op, arg := range stage {
			var err error
			current, err = applyStage(ctx, p, op, arg, current)
			if err != nil {
				return nil, models.NewError(models.KindStorage, "store.Aggregate",
					fmt.Sprintf("stage %s on %s", op, collection), err)
			}
		}
	}
	return current, nil
}

func (p *Pool) fetchDocs(ctx context.Context, collection string) (Value, error) {
	rows, err := p.db.Query(ctx, fmt.Sprintf(`SELECT doc FROM %s`, quoteIdent(collection)))
	if err != nil {
		return nil, models.NewError(models.KindStorage, "store.Aggregate", "fetch "+collection, err)
	}
	defer rows.Close()

	var out Value
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, models.NewError(models.KindStorage, "store.Aggregate", "scan "+collection, err)
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, models.NewError(models.KindInternal, "store.Aggregate", "unmarshal "+collection, err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func applyStage(ctx context.Context, p *Pool, op string, arg any, in Value) (Value, error) {
	switch op {
	case "$match":
		filter, _ := arg.(map[string]any)
		return matchStage(filter, in), nil
	case "$project":
		fields, _ := arg.(map[string]any)
		return projectStage(fields, in), nil
	case "$unwind":
		field, _ := arg.(string)
		return unwindStage(field, in), nil
	case "$group":
		spec, _ := arg.(map[string]any)
		return groupStage(spec, in), nil
	case "$lookup":
		spec, _ := arg.(map[string]any)
		return lookupStage(ctx, p, spec, in)
	default:
		return nil, fmt.Errorf("unsupported pipeline operator %q", op)
	}
}

func matchStage(filter map[string]any, in Value) Value {
	var out Value
	for _, doc := range in {
		if docMatches(filter, doc) {
			out = append(out, doc)
		}
	}
	return out
}

func docMatches(filter map[string]any, doc map[string]any) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

func projectStage(fields map[string]any, in Value) Value {
	if len(fields) == 0 {
		return in
	}
	out := make(Value, 0, len(in))
	for _, doc := range in {
		projected := make(map[string]any, len(fields))
		for dst, src := range fields {
			key, ok := src.(string)
			if !ok {
				key = dst
			}
			projected[dst] = doc[key]
		}
		out = append(out, projected)
	}
	return out
}

func unwindStage(field string, in Value) Value {
	var out Value
	for _, doc := range in {
		arr, ok := doc[field].([]any)
		if !ok || len(arr) == 0 {
			out = append(out, doc)
			continue
		}
		for _, item := range arr {
			clone := make(map[string]any, len(doc))
			for k, v := range doc {
				clone[k] = v
			}
			clone[field] = item
			out = append(out, clone)
		}
	}
	return out
}

func groupStage(spec map[string]any, in Value) Value {
	groupBy, _ := spec["_id"].(string)

	groups := make(map[string]Value)
	var order []string
	for _, doc := range in {
		key := fmt.Sprintf("%v", doc[groupBy])
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], doc)
	}

	out := make(Value, 0, len(order))
	for _, key := range order {
		entry := map[string]any{"_id": key, "count": len(groups[key])}
		out = append(out, entry)
	}
	return out
}

// lookupStage joins another collection on (localField == foreignField),
// attaching matches under "as".
func lookupStage(ctx context.Context, p *Pool, spec map[string]any, in Value) (Value, error) {
	from, _ := spec["from"].(string)
	localField, _ := spec["localField"].(string)
	foreignField, _ := spec["foreignField"].(string)
	as, _ := spec["as"].(string)

	foreign, err := p.fetchDocs(ctx, from)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]Value)
	for _, doc := range foreign {
		key := fmt.Sprintf("%v", doc[foreignField])
		byKey[key] = append(byKey[key], doc)
	}

	out := make(Value, 0, len(in))
	for _, doc := range in {
		clone := make(map[string]any, len(doc)+1)
		for k, v := range doc {
			clone[k] = v
		}
		key := fmt.Sprintf("%v", doc[localField])
		clone[as] = byKey[key]
		out = append(out, clone)
	}
	return out, nil
}
