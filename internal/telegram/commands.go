package telegram

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/flemzord/tgbridge/internal/protocol"
)

// Client commands.
const (
	cmdMessage       = "msg"
	cmdContactList   = "contact_list"
	cmdDialogList    = "dialog_list"
	cmdAddContact    = "add_contact"
	cmdRenameContact = "rename_contact"
	cmdUserInfo      = "user_info"
	cmdHistory       = "history"
	cmdMarkRead      = "mark_read"
)

// DefaultHistoryLimit is the number of messages History asks for when the
// caller passes zero.
const DefaultHistoryLimit = 40

// DialogFilter selects dialog list entries.
type DialogFilter int

const (
	DialogsAll DialogFilter = iota
	DialogsRead
	DialogsUnread
)

func (f DialogFilter) String() string {
	switch f {
	case DialogsRead:
		return "read"
	case DialogsUnread:
		return "unread"
	default:
		return "all"
	}
}

// ParseDialogFilter maps "all", "read" and "unread" to a filter.
func ParseDialogFilter(s string) (DialogFilter, bool) {
	switch strings.ToLower(s) {
	case "", "all":
		return DialogsAll, true
	case "read":
		return DialogsRead, true
	case "unread":
		return DialogsUnread, true
	}
	return DialogsAll, false
}

// namePattern matches display names, including non-ASCII letters.
const namePattern = `[\p{L}\p{N}_\s]+`

// now is replaced in tests.
var now = time.Now

var (
	contactOffline = regexp.MustCompile(`User\s#(\d+):\s(` + namePattern + `)\s\((\w+)\s(\d+)\)\s(offline)\.\s\w+\s\w+\s\[(\w+/\w+/\w+)\s(\w+:\w+:\w+)\]`)
	contactOnline  = regexp.MustCompile(`User\s#(\d+):\s(` + namePattern + `)\s\((\w+)\s(\d+)\)\s(online)`)

	dialogPatterns = map[DialogFilter]*regexp.Regexp{
		DialogsAll:    regexp.MustCompile(`^User\s(` + namePattern + `):\s(\d+)\s(\w+)$`),
		DialogsRead:   regexp.MustCompile(`^User\s(` + namePattern + `):\s(0)\s(\w+)$`),
		DialogsUnread: regexp.MustCompile(`^User\s(` + namePattern + `):\s([1-9]\d*)\s(\w+)$`),
	}

	historyLine = regexp.MustCompile(`(\d+)\s\[(.*.)\]\s+(.*.)\s(«««|»»»|<<<|>>>)(.*)`)

	userInfoFields = []*regexp.Regexp{
		regexp.MustCompile(`^(User)\s(` + namePattern + `):$`),
		regexp.MustCompile(`^real\s(name):\s(` + namePattern + `)$`),
		regexp.MustCompile(`^(phone):\s(\d+)$`),
	}
	userInfoStatus = []*regexp.Regexp{
		regexp.MustCompile(`^(online)$`),
		regexp.MustCompile(`^(offline)\s\(was\sonline\s\[([\d/]+)\s([\d:]+)\]\)`),
	}
)

var contactDescriptor = protocol.Descriptor[Contact]{
	Command:    cmdContactList,
	Patterns:   []*regexp.Regexp{contactOffline, contactOnline},
	FieldNames: []string{"string", "id", "name", "peer", "phone", "status", "date", "hour"},
	IndexField: "phone",
	Translate:  translateContact,
}

func translateContact(f protocol.Fields) Contact {
	c := Contact{
		ID:     f["id"],
		Name:   strings.TrimSpace(f["name"]),
		Peer:   f["peer"],
		Phone:  f["phone"],
		Status: f["status"],
		Raw:    f,
	}
	if date, ok := f.Get("date"); ok {
		if t, ok := parseStamp(date+" "+f["hour"], now()); ok {
			c.LastSeen = Some(t)
		}
	}
	return c
}

func dialogDescriptor(filter DialogFilter) protocol.Descriptor[DialogEntry] {
	re, ok := dialogPatterns[filter]
	if !ok {
		re = dialogPatterns[DialogsAll]
	}
	return protocol.Descriptor[DialogEntry]{
		Command:    cmdDialogList,
		Patterns:   []*regexp.Regexp{re},
		FieldNames: []string{"string", "user", "messages", "state"},
		Translate:  translateDialog,
	}
}

func translateDialog(f protocol.Fields) DialogEntry {
	n, _ := strconv.Atoi(f["messages"])
	user := strings.TrimSpace(f["user"])
	return DialogEntry{
		User:     user,
		Peer:     PeerName(user),
		Messages: n,
		State:    f["state"],
		Raw:      f,
	}
}

var historyDescriptor = protocol.Descriptor[Message]{
	Command:    cmdHistory,
	Patterns:   []*regexp.Regexp{historyLine},
	FieldNames: []string{"string", "id", "date", "name", "glyph", "text"},
	IndexField: "id",
	Translate:  translateMessage,
}

func translateMessage(f protocol.Fields) Message {
	name := strings.TrimSpace(f["name"])
	m := Message{
		ID:   f["id"],
		Date: f["date"],
		Name: name,
		Peer: PeerName(name),
		Text: strings.TrimSpace(f["text"]),
		Raw:  f,
	}
	switch f["glyph"] {
	case "«««", "<<<":
		m.Direction = DirectionIncoming
	case "»»»", ">>>":
		m.Direction = DirectionOutgoing
	}
	if t, ok := parseStamp(m.Date, now()); ok {
		m.Time = Some(t)
	}
	return m
}

// parseContactInfo decodes a user_info response in two passes: identity
// lines first, then the status line.
func parseContactInfo(buf *protocol.Buffer) (*ContactInfo, bool) {
	fields := protocol.Match(buf, userInfoFields, []string{"string", "type", "data"})
	if len(fields) == 0 {
		return nil, false
	}

	info := &ContactInfo{Raw: fields}
	for _, f := range fields {
		data := strings.TrimSpace(f["data"])
		switch f["type"] {
		case "User":
			info.Name = data
		case "name":
			info.RealName = data
		case "phone":
			info.Phone = data
		}
	}
	info.Peer = PeerName(info.Name)

	status := protocol.Match(buf, userInfoStatus, []string{"string", "status", "date", "time"})
	if len(status) > 0 {
		s := status[0]
		info.Status = s["status"]
		if date, ok := s.Get("date"); ok {
			if t, ok := parseStamp(date+" "+s["time"], now()); ok {
				info.LastSeen = Some(t)
			}
		}
		info.Raw = append(info.Raw, s)
	}
	return info, true
}
