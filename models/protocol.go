package models

// Inbound UI message kinds.
const (
	MsgLogin            = "LOGIN"
	MsgGenerateLinkCode = "GENERATE_LINK_CODE"
	MsgAddTodo          = "ADD_TODO"
	MsgToggleTodo       = "TOGGLE_TODO"
	MsgGetTodos         = "GET_TODOS"
	MsgSendChat         = "SEND_CHAT"
	MsgGetStats         = "GET_STATS"
)

// Outbound UI message kinds.
const (
	MsgLoginSuccess = "LOGIN_SUCCESS"
	MsgLoginFail    = "LOGIN_FAIL"
	MsgLinkCode     = "LINK_CODE"
	MsgStateUpdate  = "STATE_UPDATE"
	MsgChatIncoming = "CHAT_INCOMING"
	MsgStats        = "STATS"
	MsgError        = "ERROR"
)

// Chat origins used in CHAT_INCOMING.from.
const (
	OriginWeb      = "web"
	OriginTelegram = "telegram"
)

// ClientMessage is the union of every inbound UI frame. Only the fields
// relevant to Type are read.
type ClientMessage struct {
	Type      string `json:"type"`
	PublicKey string `json:"publicKey,omitempty"`
	Signature string `json:"signature,omitempty"`
	Message   string `json:"message,omitempty"`
	Text      string `json:"text,omitempty"`
	ID        int64  `json:"id,omitempty"`
}

type LoginSuccess struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Todos    []Task `json:"todos"`
}

type LoginFail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type LinkCodeReply struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

type StateUpdate struct {
	Type  string `json:"type"`
	Todos []Task `json:"todos"`
}

type ChatIncoming struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	From   string `json:"from"`
	Sender string `json:"sender"`
}

type Stats struct {
	Type         string `json:"type"`
	Sessions     int    `json:"sessions"`
	Wallets      int    `json:"wallets"`
	PendingCodes int    `json:"pendingCodes"`
	GatewayOpen  bool   `json:"gatewayOpen"`
}

type ErrorReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewStateUpdate never emits a null list.
func NewStateUpdate(tasks []Task) StateUpdate {
	if tasks == nil {
		tasks = []Task{}
	}
	return StateUpdate{Type: MsgStateUpdate, Todos: tasks}
}
