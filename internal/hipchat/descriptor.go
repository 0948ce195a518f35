package hipchat

import (
	_ "embed"
	"encoding/json"

	"github.com/dzhang30/DZbot/internal/status"
)

//go:embed capability_descriptor.json
var descriptorTemplate []byte

type descriptor struct {
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Key          string            `json:"key"`
	Links        map[string]string `json:"links"`
	Capabilities struct {
		APIConsumer struct {
			Scopes []string `json:"scopes"`
		} `json:"hipchatApiConsumer"`
		Webhook []struct {
			Name           string `json:"name"`
			Event          string `json:"event"`
			Pattern        string `json:"pattern"`
			URL            string `json:"url"`
			Authentication string `json:"authentication"`
		} `json:"webhook"`
	} `json:"capabilities"`
}

// CapabilityDescriptor renders the add-on capability descriptor with the
// webhook callback rewritten to the given URL. Room admins fetch this once
// to register the integration.
func CapabilityDescriptor(webhookURL string) (json.RawMessage, status.Status) {
	var doc descriptor
	if err := json.Unmarshal(descriptorTemplate, &doc); err != nil {
		return nil, status.Fail("could not read capability descriptor: %v", err)
	}

	doc.Links["self"] = webhookURL + "/capability-descriptor"
	for i := range doc.Capabilities.Webhook {
		doc.Capabilities.Webhook[i].URL = webhookURL
	}

	rendered, err := json.Marshal(doc)
	if err != nil {
		return nil, status.Fail("could not render capability descriptor: %v", err)
	}

	return rendered, status.OK("capability descriptor read successfully")
}
