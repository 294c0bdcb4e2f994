// Package model holds the wire and domain types shared across the client.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Item status values as reported by the backend. The lifecycle only moves
// forward: lost→found, found→claimed. The client never regresses a status
// locally; it only reflects what the server returns.
const (
	StatusLost    = "lost"
	StatusFound   = "found"
	StatusClaimed = "claimed"
)

// ValidStatus 校验状态枚举值 / ValidStatus reports whether s is a known item status.
func ValidStatus(s string) bool {
	switch s {
	case StatusLost, StatusFound, StatusClaimed:
		return true
	default:
		return false
	}
}

// TokenPair 一次登录得到的凭据对 / TokenPair is the credential pair from one login.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// LoginResult login 接口返回体 / LoginResult is the login endpoint response body.
type LoginResult struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	UserID  int64  `json:"user_id"`
}

// RegisterPayload register 接口请求体 / RegisterPayload is the register request body.
type RegisterPayload struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	StudentID string `json:"student_id"`
	Phone     string `json:"phone,omitempty"`
}

// UserProfile 服务端用户档案，展示字段的唯一可信来源
// UserProfile is the server-side profile; it is the source of truth for
// every displayed user field.
type UserProfile struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	StudentID string `json:"student_id"`
	Phone     string `json:"phone"`
}

// Category is an item category as listed by the backend.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ClaimStatus is the latest claim attempt attached to an item, if any.
type ClaimStatus struct {
	Status          string `json:"status"`
	ClaimerID       int64  `json:"claimer_id"`
	ClaimerUsername string `json:"claimer_username"`
	CreatedAt       string `json:"created_at"`
	ClaimNote       string `json:"claim_note,omitempty"`
}

// Item 失物/拾物记录 / Item is one lost or found record.
type Item struct {
	ID           int64        `json:"id"`
	User         int64        `json:"user"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Location     string       `json:"location"`
	CategoryName string       `json:"category_name"`
	CreatedAt    time.Time    `json:"created_at"`
	Status       string       `json:"status"`
	IsClaimed    bool         `json:"is_claimed"`
	PrivateNote  string       `json:"private_note"`
	Image        string       `json:"image"`
	ClaimStatus  *ClaimStatus `json:"claim_status"`
}

// ReportItemPayload is the multipart form for reporting an item. Image is
// optional; when ImageName is empty no file part is sent.
type ReportItemPayload struct {
	Title       string
	Description string
	Location    string
	Status      string
	CategoryID  int64
	PrivateNote string
	ImageName   string
	ImageData   []byte
}

// Message is one chat message. The JSON field for the text body is "message"
// on the wire; Timestamp ordering per conversation is non-decreasing and the
// render order is the server's order, not client receipt order.
type Message struct {
	ID             int64     `json:"id"`
	Sender         int64     `json:"sender"`
	SenderUsername string    `json:"sender_username"`
	Receiver       int64     `json:"receiver"`
	Item           int64     `json:"item"`
	Body           string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
	IsRead         bool      `json:"is_read"`
}

// NotificationSummary 未读计数，后到覆盖先到 / NotificationSummary is the unread
// scalar; each newer fetch supersedes the previous one (last write wins).
type NotificationSummary struct {
	UnreadMessages int `json:"unread_messages"`
}

// Notification is one entry of the notification list view.
type Notification struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Dashboard is the aggregate view returned by the dashboard endpoint.
type Dashboard struct {
	TotalLostItems  int     `json:"total_lost_items"`
	TotalFoundItems int     `json:"total_found_items"`
	TotalAIMatches  int     `json:"total_ai_matches"`
	SuccessRatio    float64 `json:"success_ratio"`
	LostItems       []Item  `json:"lost_items"`
	FoundItems      []Item  `json:"found_items"`
}

// MatchDetails are the masked fields of a match candidate. The server never
// reveals the full title or location of someone else's item here.
type MatchDetails struct {
	TitleHint       string `json:"title_hint"`
	DescriptionHint string `json:"description_hint"`
	LocationHint    string `json:"location_hint"`
	Image           string `json:"image"`
	OwnerID         int64  `json:"owner_id"`
}

// Match is one scored entry from the AI matching endpoint. Score is a 0..1
// confidence fraction.
type Match struct {
	ItemID  int64        `json:"item_id"`
	Score   float64      `json:"score"`
	Details MatchDetails `json:"details"`
}

// ConversationKey 标识一个聊天线程 / ConversationKey identifies one chat thread:
// the item under discussion plus the other participant. Both identifiers must
// be present and positive or the thread is unrenderable.
type ConversationKey struct {
	ItemID        int64
	CounterpartID int64
}

// Validate returns a non-nil error for a key that must never reach the network.
func (k ConversationKey) Validate() error {
	if k.ItemID <= 0 || k.CounterpartID <= 0 {
		return fmt.Errorf("invalid chat session: item id or receiver id is missing or invalid")
	}
	return nil
}

func (k ConversationKey) String() string {
	return fmt.Sprintf("item=%d counterpart=%d", k.ItemID, k.CounterpartID)
}

// ParseConversationKey builds a key from raw string identifiers (e.g. REPL
// arguments or deep-link parameters), enforcing the numeric requirement.
func ParseConversationKey(itemID, counterpartID string) (ConversationKey, error) {
	item, err := strconv.ParseInt(strings.TrimSpace(itemID), 10, 64)
	if err != nil {
		return ConversationKey{}, fmt.Errorf("item id must be a valid number")
	}
	counterpart, err := strconv.ParseInt(strings.TrimSpace(counterpartID), 10, 64)
	if err != nil {
		return ConversationKey{}, fmt.Errorf("receiver id must be a valid number")
	}
	key := ConversationKey{ItemID: item, CounterpartID: counterpart}
	return key, key.Validate()
}
