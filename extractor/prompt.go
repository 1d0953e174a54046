package extractor

import (
	"encoding/json"
	"fmt"
	"strings"

	"invoice_nft_receipt/invoice"
)

// PromptKind tells providers and the offline demo client what a prompt is for.
type PromptKind string

const (
	KindIntent  PromptKind = "intent"
	KindExtract PromptKind = "extract"
	KindUpdate  PromptKind = "update"
)

// Prompt is the set of messages sent to the model, plus sampling limits.
type Prompt struct {
	Kind        PromptKind
	System      string
	User        string
	History     []Message
	Temperature float64
	MaxTokens   int
	// JSON asks providers that support it for a JSON-only response.
	JSON bool
}

// Message is one prior role-tagged message.
type Message struct {
	Role    string
	Content string
}

const (
	classifierTemperature = 0.1
	classifierMaxTokens   = 10
	draftTemperature      = 0.1
	draftMaxTokens        = 500
)

// BuildIntentPrompt asks for a bare YES/NO on whether the user wants the
// assistant to estimate missing details.
func BuildIntentPrompt(message string) Prompt {
	var sb strings.Builder
	sb.WriteString("Analyze if the user is asking you to calculate, estimate, or assume missing invoice details (like amount, rate, or payer).\n\n")
	fmt.Fprintf(&sb, "User message: %q\n\n", message)
	sb.WriteString(`Respond with ONLY "YES" if they want you to make assumptions/calculations, or "NO" if they are providing all details explicitly.` + "\n\n")
	sb.WriteString("Examples:\n")
	sb.WriteString(`- "I did work, figure out the rate" -> YES` + "\n")
	sb.WriteString(`- "Built a website, not sure about pricing" -> YES` + "\n")
	sb.WriteString(`- "Can you estimate the cost?" -> YES` + "\n")
	sb.WriteString(`- "I built a website for $5000 for Acme" -> NO` + "\n")
	sb.WriteString(`- "Completed the project for John, amount $2000" -> NO` + "\n\n")
	sb.WriteString("Response (YES or NO):")

	return Prompt{
		Kind:        KindIntent,
		User:        sb.String(),
		Temperature: classifierTemperature,
		MaxTokens:   classifierMaxTokens,
	}
}

// BuildExtractionPrompt turns the user's description into the first draft.
func BuildExtractionPrompt(input string, allowAssumptions bool) Prompt {
	var sb strings.Builder
	sb.WriteString("You are an invoice processing assistant. Your ONLY job is to extract information and return valid JSON.\n\n")
	sb.WriteString("CRITICAL RULES:\n")
	sb.WriteString("- RECIPIENT = the person who DID the work and will RECEIVE the payment\n")
	sb.WriteString("- PAYER = the person who WILL PAY for the work (the client/customer)\n")
	sb.WriteString("- Never swap RECIPIENT and PAYER\n")
	sb.WriteString("- AMOUNT must be a NUMBER only (no $, no text, just the number)\n\n")
	sb.WriteString("Return this EXACT JSON format:\n")
	sb.WriteString("{\n")
	sb.WriteString(`  "amount": <number or null>,` + "\n")
	sb.WriteString(`  "description": "<work description>",` + "\n")
	sb.WriteString(`  "payer": "<client name or null>",` + "\n")
	sb.WriteString(`  "recipient": "<worker name or null>",` + "\n")
	sb.WriteString(`  "workingHours": <number or null>,` + "\n")
	sb.WriteString(`  "assumedFields": [<names of fields you estimated>]` + "\n")
	sb.WriteString("}\n\n")
	sb.WriteString("EXTRACTION:\n")
	sb.WriteString(`1. RECIPIENT: look for "I am X", "my name is X", "X did the work"` + "\n")
	sb.WriteString(`2. PAYER: look for "for Y", "Y's project", "client is Y"` + "\n")
	sb.WriteString("3. AMOUNT: extract ONLY the number (remove $, dollar, etc)\n")
	sb.WriteString("4. HOURS: extract if mentioned\n")
	sb.WriteString("5. DESCRIPTION: brief work description\n\n")
	if allowAssumptions {
		sb.WriteString("ASSUMPTION MODE ENABLED:\n")
		sb.WriteString("- If the amount is missing, estimate it from the type of work and the hours using these hourly rates:\n")
		sb.WriteString("  junior developer $50-75, mid-level developer $75-125, senior developer $125-200, specialized work (AI/ML, blockchain) $150-250\n")
		sb.WriteString("- If the payer is missing, set it to null\n")
		sb.WriteString(`- List every field you estimated in "assumedFields"` + "\n\n")
	} else {
		sb.WriteString("STRICT MODE:\n")
		sb.WriteString("- Extract ONLY what the user explicitly provided\n")
		sb.WriteString("- DO NOT estimate; set any missing field to null\n")
		sb.WriteString(`- "assumedFields" must be []` + "\n\n")
	}
	sb.WriteString("Return ONLY JSON, no explanations.")

	return Prompt{
		Kind:        KindExtract,
		System:      sb.String(),
		User:        input,
		Temperature: draftTemperature,
		MaxTokens:   draftMaxTokens,
		JSON:        true,
	}
}

// BuildUpdatePrompt revises the current draft from free-text feedback.
func BuildUpdatePrompt(current invoice.Draft, feedback string) Prompt {
	body, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		body = []byte("{}")
	}

	var sb strings.Builder
	sb.WriteString("You are updating an existing invoice based on user feedback.\n\n")
	sb.WriteString("CURRENT INVOICE:\n")
	sb.Write(body)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "USER FEEDBACK: %q\n\n", feedback)
	sb.WriteString("CRITICAL RULES FOR UPDATES:\n")
	sb.WriteString("1. Update ONLY fields mentioned in the feedback\n")
	sb.WriteString("2. Keep all other fields exactly the same\n")
	sb.WriteString("3. Never swap payer and recipient unless the feedback asks for it\n")
	sb.WriteString("4. Extract ONLY the pure number for the amount (remove $, dollar, etc)\n\n")
	sb.WriteString("COMMON PATTERNS:\n")
	sb.WriteString(`- "amount is 70" -> amount: 70` + "\n")
	sb.WriteString(`- "amount 60" -> amount: 60` + "\n")
	sb.WriteString(`- "make it 80 dollars" -> amount: 80` + "\n")
	sb.WriteString(`- "payer is X" -> payer: "X"` + "\n")
	sb.WriteString(`- "working hours is 5" -> workingHours: 5` + "\n\n")
	sb.WriteString("Return the complete updated JSON in the same format:\n")
	sb.WriteString(`{"amount": <number>, "description": "<description>", "payer": "<payer>", "recipient": "<recipient>", "workingHours": <number or null>}` + "\n\n")
	sb.WriteString("Return ONLY JSON, no explanations.")

	return Prompt{
		Kind:        KindUpdate,
		System:      sb.String(),
		User:        "Update: " + feedback,
		Temperature: draftTemperature,
		MaxTokens:   draftMaxTokens,
		JSON:        true,
	}
}
