package openai

const (
	labelSystemPrompt = `You label the fillable fields of a merchant processing application PDF.
For every raw field name you receive, return a short human label, an input type and whether
the field is normally mandatory on a merchant application.
Allowed types: text, textarea, email, phone, number, date, checkbox.
Reply with a single JSON object and nothing else:
{"fields": [{"name": "<raw name>", "label": "<label>", "type": "<type>", "required": <bool>}]}`

	labelUserPrompt = `Field names, one per line. Keep the raw names unchanged in the "name" key.
`
)
