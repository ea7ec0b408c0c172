package qdrant

import (
	"errors"
	"testing"
)

func TestTranslateFilterMapSubset(t *testing.T) {
	filter := map[string]any{
		"name": "wall handstand hold",
		"database_id": map[string]any{
			"$in": []any{"row-1", "row-2"},
		},
	}

	got, err := translateFilterMap(filter)
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	if len(got.Must) != 2 {
		t.Fatalf("must length: want=2 got=%d", len(got.Must))
	}

	nameCond := findConditionByKey(got.Must, "name")
	if nameCond == nil {
		t.Fatalf("missing name condition")
	}
	nameMatch, ok := nameCond["match"].(map[string]any)
	if !ok || nameMatch["value"] != "wall handstand hold" {
		t.Fatalf("name match: got=%v", nameCond["match"])
	}

	idCond := findConditionByKey(got.Must, "database_id")
	if idCond == nil {
		t.Fatalf("missing database_id condition")
	}
	idMatch, ok := idCond["match"].(map[string]any)
	if !ok {
		t.Fatalf("database_id match type: got=%T", idCond["match"])
	}
	anyVals, ok := idMatch["any"].([]any)
	if !ok {
		t.Fatalf("database_id any type: got=%T", idMatch["any"])
	}
	if len(anyVals) != 2 || anyVals[0] != "row-1" || anyVals[1] != "row-2" {
		t.Fatalf("database_id any values: got=%v", anyVals)
	}
}

func TestTranslateFilterMapRange(t *testing.T) {
	got, err := translateFilterMap(map[string]any{
		"fitness_level": map[string]any{
			"$gte": 3,
			"$lte": 7,
		},
		"intensity": map[string]any{
			"$lt": 9,
		},
	})
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	if len(got.Must) != 2 {
		t.Fatalf("must length: want=2 got=%d", len(got.Must))
	}

	levelCond := findConditionByKey(got.Must, "fitness_level")
	if levelCond == nil {
		t.Fatalf("missing fitness_level condition")
	}
	levelRange, ok := levelCond["range"].(map[string]any)
	if !ok {
		t.Fatalf("fitness_level range type: got=%T", levelCond["range"])
	}
	if levelRange["gte"] != float64(3) || levelRange["lte"] != float64(7) {
		t.Fatalf("fitness_level range bounds: got=%v", levelRange)
	}
	if _, exists := levelRange["lt"]; exists {
		t.Fatalf("fitness_level range has unexpected lt bound: %v", levelRange)
	}

	intensityCond := findConditionByKey(got.Must, "intensity")
	if intensityCond == nil {
		t.Fatalf("missing intensity condition")
	}
	intensityRange, ok := intensityCond["range"].(map[string]any)
	if !ok {
		t.Fatalf("intensity range type: got=%T", intensityCond["range"])
	}
	if intensityRange["lt"] != float64(9) {
		t.Fatalf("intensity range bounds: got=%v", intensityRange)
	}
}

func TestTranslateFilterMapRangeRejectsNonNumeric(t *testing.T) {
	_, err := translateFilterMap(map[string]any{
		"fitness_level": map[string]any{
			"$gte": "three",
		},
	})
	if err == nil {
		t.Fatalf("translateFilterMap: expected error, got nil")
	}

	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opErr.Code != OperationErrorValidation {
		t.Fatalf("error code: want=%q got=%q", OperationErrorValidation, opErr.Code)
	}
}

func TestTranslateFilterMapUnsupportedOperator(t *testing.T) {
	_, err := translateFilterMap(map[string]any{
		"name": map[string]any{
			"$contains": "handstand",
		},
	})
	if err == nil {
		t.Fatalf("translateFilterMap: expected error, got nil")
	}

	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opErr.Code != OperationErrorUnsupportedFilter {
		t.Fatalf("error code: want=%q got=%q", OperationErrorUnsupportedFilter, opErr.Code)
	}
}

func findConditionByKey(items []any, key string) map[string]any {
	for _, raw := range items {
		cond, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if condKey, _ := cond["key"].(string); condKey == key {
			return cond
		}
	}
	return nil
}
