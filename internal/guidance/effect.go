package guidance

import (
	"encoding/json"

	"prospect-portal/internal/models"
)

// Effect is what happens when the user follows a guidance action. The set of
// effects is closed: Navigate, Mutate and OpenModal.
type Effect interface {
	effect()
	Kind() string
}

// Effect kinds
const (
	KindNavigate  = "navigate"
	KindMutate    = "mutate"
	KindOpenModal = "open_modal"
)

// ModalPropertyDetails is the multi-step property detail form
const ModalPropertyDetails = "property-details"

// Navigate sends the user to a deep link inside the prospect
type Navigate struct {
	Target string
}

func (Navigate) effect() {}
func (Navigate) Kind() string { return KindNavigate }

func (n Navigate) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   string `json:"type"`
		Target string `json:"target"`
	}{KindNavigate, n.Target})
}

// Mutate applies a fixed partial update to the prospect
type Mutate struct {
	Status models.Status
}

func (Mutate) effect() {}
func (Mutate) Kind() string { return KindMutate }

func (m Mutate) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   string        `json:"type"`
		Status models.Status `json:"status"`
	}{KindMutate, m.Status})
}

// ApplyTo writes the update onto p
func (m Mutate) ApplyTo(p *models.Prospect) {
	p.Status = m.Status
}

// OpenModal asks the client to open a form instead of navigating
type OpenModal struct {
	Modal string
}

func (OpenModal) effect() {}
func (OpenModal) Kind() string { return KindOpenModal }

func (o OpenModal) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		Modal string `json:"modal"`
	}{KindOpenModal, o.Modal})
}
