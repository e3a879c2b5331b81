package models

import "time"

// Conversation is the aggregate root for one phone number. All resumption state
// for the flow handlers lives here; there is no in-memory continuation between
// webhook deliveries.
type Conversation struct {
	PhoneNumber         string     `json:"phone_number"`
	UserName            string     `json:"user_name,omitempty"`
	CurrentFlow         FlowID     `json:"current_flow"`
	CurrentStep         string     `json:"current_step"`
	HasAcceptedPrivacy  bool       `json:"has_accepted_privacy"`
	AcceptedPrivacyAt   *time.Time `json:"accepted_privacy_at,omitempty"`
	UserData            UserData   `json:"user_data"`
	Messages            []Message  `json:"messages"`
	LastActivity        time.Time  `json:"last_activity"`
	IsHandedOverToHuman bool       `json:"is_handed_over_to_human"`
	HandoverTimestamp   *time.Time `json:"handover_timestamp,omitempty"`
	EndedAt             *time.Time `json:"ended_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// NewConversation creates the initial state for a previously unseen phone
// number: privacy flow, notice step, privacy not yet accepted.
func NewConversation(phoneNumber, userName string, now time.Time) *Conversation {
	return &Conversation{
		PhoneNumber:  phoneNumber,
		UserName:     userName,
		CurrentFlow:  FlowPrivacy,
		CurrentStep:  "notice",
		LastActivity: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// RecordInbound appends a normalized user message to the log.
func (c *Conversation) RecordInbound(m InboundMessage, now time.Time) {
	content := MessageContent{Type: string(m.Type)}
	switch m.Type {
	case MessageTypeText:
		content.Type = "text"
		content.Body = m.Text
	case MessageTypeButtonReply, MessageTypeListReply:
		content.Type = "interactive"
		content.ReplyID = m.ReplyID
		content.Title = m.ReplyTitle
	default:
		content.Type = "unknown"
	}
	c.Messages = append(c.Messages, Message{From: SenderUser, Content: content, Timestamp: now})
}

// RecordOutbound appends a bot message to the log.
func (c *Conversation) RecordOutbound(content MessageContent, now time.Time) {
	c.Messages = append(c.Messages, Message{From: SenderBot, Content: content, Timestamp: now})
}

// SessionExpired reports whether the authenticated session has been idle past
// the 24-hour window. LastActivity must not yet be bumped for the message being
// processed when this is evaluated.
func (c *Conversation) SessionExpired(now time.Time) bool {
	return now.Sub(c.LastActivity) > SessionMaxIdle
}

// End marks the conversation terminal. Terminal conversations are never routed
// to a flow handler again.
func (c *Conversation) End(step string, now time.Time) {
	c.CurrentFlow = FlowEnded
	c.CurrentStep = step
	c.EndedAt = &now
}

// HandOver flips the conversation into the muted, human-controlled state.
func (c *Conversation) HandOver(now time.Time) {
	c.IsHandedOverToHuman = true
	c.HandoverTimestamp = &now
	c.CurrentFlow = FlowHuman
	c.CurrentStep = "waiting"
}

// Release returns control to the bot after a human agent finishes. The main
// menu is the resumption point.
func (c *Conversation) Release() {
	c.IsHandedOverToHuman = false
	c.HandoverTimestamp = nil
	c.CurrentFlow = FlowMain
	c.CurrentStep = ""
}

// Reset restores the initial state for the phone number, keeping the log.
// Used by the administrative reset endpoint only.
func (c *Conversation) Reset(now time.Time) {
	c.CurrentFlow = FlowPrivacy
	c.CurrentStep = "notice"
	c.HasAcceptedPrivacy = false
	c.AcceptedPrivacyAt = nil
	c.UserData = UserData{}
	c.IsHandedOverToHuman = false
	c.HandoverTimestamp = nil
	c.EndedAt = nil
	c.LastActivity = now
}

// UserData holds the authentication identity shared across flows plus one
// scratch record per flow. Scratch records are private to their owning flow and
// must be cleared before that flow exits.
type UserData struct {
	Authenticated  bool      `json:"authenticated"`
	Cedula         string    `json:"cedula,omitempty"`
	CustomerID     string    `json:"customer_id,omitempty"`
	NombreCompleto string    `json:"nombre_completo,omitempty"`
	Email          string    `json:"email,omitempty"`
	Telefono       string    `json:"telefono,omitempty"`
	Direccion      string    `json:"direccion,omitempty"`
	Estado         string    `json:"estado,omitempty"`
	Plan           string    `json:"plan,omitempty"`
	Servicios      []Service `json:"servicios,omitempty"`
	// FacturasPendientes caches the unpaid invoices fetched during
	// authentication; informational only, flows re-fetch before acting.
	FacturasPendientes []Invoice `json:"facturas_pendientes,omitempty"`

	Pago     *PagoScratch     `json:"pago,omitempty"`
	Registro *RegistroScratch `json:"registro,omitempty"`
	Soporte  *SoporteScratch  `json:"soporte,omitempty"`
}

// Identify copies the identity fields from a resolved customer and marks the
// session authenticated.
func (u *UserData) Identify(cust Customer, cedula string, pendientes []Invoice) {
	u.Authenticated = true
	u.Cedula = cedula
	u.CustomerID = cust.ID
	u.NombreCompleto = cust.NombreCompleto
	u.Email = cust.Email
	u.Telefono = cust.Telefono
	u.Direccion = cust.Direccion
	u.Estado = cust.Estado
	u.Plan = cust.Plan
	u.Servicios = cust.Servicios
	u.FacturasPendientes = pendientes
}

// ClearAuth drops the authenticated session. The display name survives so a
// returning user can still be greeted by name.
func (u *UserData) ClearAuth() {
	name := u.NombreCompleto
	*u = UserData{NombreCompleto: name}
}

// PagoScratch is the payment flow's private state between steps.
type PagoScratch struct {
	Invoices         []Invoice `json:"invoices,omitempty"`
	InvoiceID        string    `json:"invoice_id,omitempty"`
	InvoiceNumber    string    `json:"invoice_number,omitempty"`
	OutstandingCents int64     `json:"outstanding_cents,omitempty"`
	AmountCents      int64     `json:"amount_cents,omitempty"`
}

// RegistroScratch is the registration flow's private state between steps.
type RegistroScratch struct {
	Plan      string `json:"plan,omitempty"`
	Direccion string `json:"direccion,omitempty"`
}

// SoporteScratch is the support flow's private state between steps.
type SoporteScratch struct {
	TipoProblema string `json:"tipo_problema,omitempty"`
	Descripcion  string `json:"descripcion,omitempty"`
}
