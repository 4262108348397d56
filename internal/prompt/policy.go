// Package prompt renders the shopping policy handed to the model as its
// system message. The policy is configuration: the loop never parses or
// enforces it.
package prompt

import (
	"bytes"
	"strings"
	"text/template"
)

// Policy is the business policy the assistant follows before calling the
// purchase tool.
type Policy struct {
	RequiredFields []string `json:"required_fields"`
	PaymentMethods []string `json:"payment_methods"`
	Chains         []string `json:"chains"`
	LocatorExample string   `json:"locator_example"`
	AddressFormat  string   `json:"address_format"`
	PayerTool      string   `json:"payer_tool"`
	PurchaseTool   string   `json:"purchase_tool"`
	Notes          []string `json:"notes"`
}

// Default mirrors the store policy: name, shipping address, recipient email,
// payment method and chain are mandatory.
func Default() Policy {
	return Policy{
		RequiredFields: []string{"Name", "Shipping address", "Recipient email address", "Payment method", "Preferred chain"},
		PaymentMethods: []string{"USDC", "SOL", "ETH"},
		Chains:         []string{"EVM", "Solana", "Base"},
		LocatorExample: "amazon:B08SVZ775L",
		AddressFormat:  "Name, Street, City, State ZIP, Country",
		PayerTool:      "get_wallet_address",
		PurchaseTool:   "buy_token",
		Notes: []string{
			"No need to check the token balance of the user first.",
			"When fetching the wallet's balance, make sure to always convert the balance to the decimals and not base units.",
		},
	}
}

// WithDefaults fills empty fields from Default.
func (p Policy) WithDefaults() Policy {
	def := Default()
	if len(p.RequiredFields) == 0 {
		p.RequiredFields = def.RequiredFields
	}
	if len(p.PaymentMethods) == 0 {
		p.PaymentMethods = def.PaymentMethods
	}
	if len(p.Chains) == 0 {
		p.Chains = def.Chains
	}
	if strings.TrimSpace(p.LocatorExample) == "" {
		p.LocatorExample = def.LocatorExample
	}
	if strings.TrimSpace(p.AddressFormat) == "" {
		p.AddressFormat = def.AddressFormat
	}
	if strings.TrimSpace(p.PayerTool) == "" {
		p.PayerTool = def.PayerTool
	}
	if strings.TrimSpace(p.PurchaseTool) == "" {
		p.PurchaseTool = def.PurchaseTool
	}
	if p.Notes == nil {
		p.Notes = def.Notes
	}
	return p
}

var systemTemplate = template.Must(template.New("system").Funcs(template.FuncMap{
	"join": strings.Join,
	"inc":  func(i int) int { return i + 1 },
}).Parse(`{{range .Notes}}{{.}}
{{end}}
When buying a product:
Always ask for ALL required information in the first response:
{{range $i, $f := .RequiredFields}}{{inc $i}}) {{$f}}
{{end}}
Accepted payment methods: {{join .PaymentMethods ", "}}. Supported chains: {{join .Chains ", "}}.

Only proceed with the purchase when all information is provided.
1) Use productLocator format '{{.LocatorExample}}'
2) Extract product locator from URLs
3) Require and parse valid shipping address (in format '{{.AddressFormat}}') and email
4) The recipient WILL be the email provided by the user
5) You can get the payer address using the {{.PayerTool}} tool

Once the order is executed via the {{.PurchaseTool}}, consider the purchase complete, and the payment sent. You can ask the user if they want to purchase something else.
Don't ask to confirm payment to finalize orders.`))

// SystemPrompt renders the policy into the fixed system message.
func (p Policy) SystemPrompt() string {
	var buf bytes.Buffer
	if err := systemTemplate.Execute(&buf, p.WithDefaults()); err != nil {
		// the template is static; an execution error means a broken build
		panic(err)
	}
	return strings.TrimSpace(buf.String())
}
