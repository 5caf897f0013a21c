package candidate

// SchemaName is the json_schema name sent with generation requests.
const SchemaName = "candidate_summary"

func nullable(t string) map[string]any {
	return map[string]any{"type": []any{t, "null"}}
}

func stringArray() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

func object(props map[string]any) map[string]any {
	required := make([]any, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// JSONSchema is the strict structured-output schema for Summary. Strict mode
// requires every property to be listed as required; optional values are
// expressed as nullable types.
func JSONSchema() map[string]any {
	work := object(map[string]any{
		"company":             nullable("string"),
		"role":                nullable("string"),
		"duration":            nullable("string"),
		"keyResponsibilities": stringArray(),
		"achievements":        stringArray(),
		"technologiesUsed":    stringArray(),
	})
	project := object(map[string]any{
		"name":             nullable("string"),
		"description":      nullable("string"),
		"technologiesUsed": stringArray(),
		"impact":           nullable("string"),
	})
	education := object(map[string]any{
		"institution":  nullable("string"),
		"degree":       nullable("string"),
		"fieldOfStudy": nullable("string"),
		"highlights":   nullable("string"),
	})
	education["type"] = []any{"object", "null"}

	return object(map[string]any{
		"professionalSummary": nullable("string"),
		"yearsOfExperience":   nullable("number"),
		"coreSkills":          stringArray(),
		"workExperience":      map[string]any{"type": "array", "items": work},
		"projects":            map[string]any{"type": "array", "items": project},
		"education":           education,
	})
}
