package llm

import "fmt"

// EntityExtractionPrompt generates a strict JSON-only prompt for extracting
// entities from a conversation turn. The instructions are deliberately
// repetitive: small local models drift into markdown or prose otherwise.
func EntityExtractionPrompt(content string) string {
	return fmt.Sprintf(`TASK: Extract entities about the user from the text.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO backticks.

ENTITY TYPES:
- person: Individual human
- place: Location, city, home, venue
- device: Physical device or appliance
- concept: Preference, habit, idea, anything else worth remembering

REQUIRED JSON STRUCTURE:
Your response MUST start with { and end with }

{"entities":[{"name":"...","type":"person","attributes":{"key":"value"},"confidence":0.9}]}

RULES:
- confidence is a number between 0 and 1
- attributes is optional and maps strings to strings
- return {"entities":[]} when nothing is worth extracting

TEXT:
%s`, content)
}

// RelationExtractionPrompt generates a strict JSON-only prompt for extracting
// relations between the already-known entity names.
func RelationExtractionPrompt(content string, entityNames []string) string {
	names := ""
	for i, n := range entityNames {
		if i > 0 {
			names += ", "
		}
		names += n
	}
	return fmt.Sprintf(`TASK: Extract relations between the known entities from the text.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO backticks.

KNOWN ENTITIES: %s

REQUIRED JSON STRUCTURE:
Your response MUST start with { and end with }

{"relations":[{"source":"...","relation":"verb_phrase","target":"...","confidence":0.9}]}

RULES:
- source and target MUST be names from the KNOWN ENTITIES list
- relation is a short lowercase verb phrase with underscores (e.g. "habite_à", "aime")
- confidence is a number between 0 and 1
- return {"relations":[]} when no relation is stated

TEXT:
%s`, names, content)
}

// SummarizationPrompt condenses a slice of conversation turns into a short
// factual summary, used when history rotates out of the retained window.
func SummarizationPrompt(turns string, topic string) string {
	return fmt.Sprintf(`TASK: Summarize the following conversation excerpt in 2-3 factual sentences.
Focus on durable facts about the user (topic: %s). No preamble, no commentary.

CONVERSATION:
%s`, topic, turns)
}
