package service

import (
	"fmt"

	"github.com/agoradata/agora/internal/domain"
)

// Weights of the overall quality score. Other components and the decision
// tests depend on these exact values.
const (
	weightCompleteness   = 0.30
	weightSchemaMatch    = 0.20
	weightDataQuality    = 0.30
	weightRequiredFields = 0.20
)

// Assessment is the result of scoring a data sample against an agent's
// requirements and the seller's declared schema.
type Assessment struct {
	Completeness          float64  `json:"completeness"`
	SchemaMatch           float64  `json:"schema_match"`
	DataQuality           float64  `json:"data_quality"`
	RequiredFieldsPresent bool     `json:"required_fields_present"`
	OverallScore          float64  `json:"overall_score"`
	Issues                []string `json:"issues,omitempty"`
}

// Assess scores a sample. Pure function: same inputs, same scores.
//
// Completeness is the filled-field ratio of the first record. SchemaMatch is
// the fraction of declared schema fields present in the sample (1 with no
// declared schema). DataQuality starts at 0.8 when every record has the first
// record's exact key set, 0.5 otherwise, and loses 0.2 when the mean empty-value
// ratio across records exceeds 0.3. The overall score mixes the four parts
// 30/20/30/20.
func Assess(sample []domain.Record, requiredFields []string, declaredSchema map[string]string) Assessment {
	a := Assessment{}

	var first domain.Record
	if len(sample) > 0 {
		first = sample[0]
	}

	a.RequiredFieldsPresent = true
	for _, field := range requiredFields {
		if !filled(first[field]) {
			a.RequiredFieldsPresent = false
			a.Issues = append(a.Issues, fmt.Sprintf("missing required field: %s", field))
		}
	}

	if len(first) > 0 {
		present := 0
		for _, v := range first {
			if filled(v) {
				present++
			}
		}
		a.Completeness = float64(present) / float64(len(first))
	}

	if len(declaredSchema) == 0 {
		a.SchemaMatch = 1
	} else {
		matched := 0
		for field := range declaredSchema {
			if _, ok := first[field]; ok {
				matched++
			}
		}
		a.SchemaMatch = float64(matched) / float64(len(declaredSchema))
	}

	a.DataQuality = dataQuality(sample, first)

	a.OverallScore = weightCompleteness*a.Completeness +
		weightSchemaMatch*a.SchemaMatch +
		weightDataQuality*a.DataQuality
	if a.RequiredFieldsPresent {
		a.OverallScore += weightRequiredFields
	}

	return a
}

func dataQuality(sample []domain.Record, first domain.Record) float64 {
	quality := 0.8
	for _, rec := range sample {
		if !sameShape(rec, first) {
			quality = 0.5
			break
		}
	}

	if len(sample) > 0 {
		var total float64
		for _, rec := range sample {
			if len(rec) == 0 {
				total += 1
				continue
			}
			empty := 0
			for _, v := range rec {
				if !filled(v) {
					empty++
				}
			}
			total += float64(empty) / float64(len(rec))
		}
		if total/float64(len(sample)) > 0.3 {
			quality -= 0.2
			if quality < 0 {
				quality = 0
			}
		}
	}

	return quality
}

func sameShape(rec, first domain.Record) bool {
	if len(rec) != len(first) {
		return false
	}
	for k := range first {
		if _, ok := rec[k]; !ok {
			return false
		}
	}
	return true
}

// filled reports whether a value counts as present: not nil, not an empty
// string, not an empty collection.
func filled(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
