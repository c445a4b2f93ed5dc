package session

import (
	"errors"
	"strings"

	framework "github.com/bhandras/qachat/internal/actor"
	"github.com/bhandras/qachat/internal/chat"
	"github.com/bhandras/qachat/internal/gateway"
)

// errorPrefix starts the content of an error-flagged assistant turn.
const errorPrefix = "Ошибка: "

// Reduce is the orchestrator reducer.
func Reduce(state State, input framework.Input) (State, []framework.Effect) {
	switch in := input.(type) {
	case cmdInitialize:
		return reduceInitialize(state, in)
	case evInitResult:
		return reduceInitResult(state, in)
	case cmdSend:
		return reduceSend(state, in)
	case evChatResult:
		return reduceChatResult(state, in)
	case cmdLoadHistory:
		return reduceLoadHistory(state, in)
	case evHistoryResult:
		return reduceHistoryResult(state, in)
	case cmdClearSession:
		return reduceClearSession(state, in)
	default:
		return state, nil
	}
}

func reduceInitialize(state State, in cmdInitialize) (State, []framework.Effect) {
	if state.Initializing {
		// Join the attempt already in flight.
		if in.Reply != nil {
			state.PendingInitReplies = append(append([]chan error(nil), state.PendingInitReplies...), in.Reply)
		}
		return state, nil
	}
	state.Initializing = true
	state.InitGen++
	state.PendingInitReplies = nil
	if in.Reply != nil {
		state.PendingInitReplies = []chan error{in.Reply}
	}
	return state, []framework.Effect{effInitialize{Gen: state.InitGen}}
}

func reduceInitResult(state State, in evInitResult) (State, []framework.Effect) {
	if !state.Initializing || in.Gen != state.InitGen {
		return state, nil
	}
	state.Initializing = false
	if in.Err == nil {
		state.Ready = true
		state.InitErr = nil
	} else {
		state.Ready = false
		state.InitErr = &chat.InitError{Kind: string(kindOf(in.Err)), Message: reasonOf(in.Err)}
	}

	effects := make([]framework.Effect, 0, len(state.PendingInitReplies))
	for _, reply := range state.PendingInitReplies {
		effects = append(effects, effCompleteReply{Reply: reply, Err: in.Err})
	}
	state.PendingInitReplies = nil
	return state, effects
}

func reduceSend(state State, in cmdSend) (State, []framework.Effect) {
	text := strings.TrimSpace(in.Text)
	var err error
	switch {
	case text == "":
		err = ErrBlankMessage
	case state.Loading:
		err = ErrRequestInFlight
	case !state.Ready:
		err = ErrNotReady
	}
	if err != nil {
		return state, []framework.Effect{effCompleteReply{Reply: in.Reply, Err: err}}
	}

	state.Messages = appendMessage(state.Messages, chat.Message{
		ID:        in.ID,
		Role:      chat.RoleUser,
		Content:   text,
		CreatedAt: in.Now,
	})
	state.Loading = true
	state.PendingUserID = in.ID

	return state, []framework.Effect{
		effCompleteReply{Reply: in.Reply},
		effChat{
			Epoch:     state.Epoch,
			UserID:    in.ID,
			SessionID: state.SessionID,
			Question:  text,
		},
	}
}

func reduceChatResult(state State, in evChatResult) (State, []framework.Effect) {
	if !state.Loading || in.UserID != state.PendingUserID {
		return state, nil
	}
	state.Loading = false
	state.PendingUserID = ""
	if in.Epoch != state.Epoch {
		return state, nil
	}
	state.Messages = appendMessage(state.Messages, assistantTurn(in))
	return state, nil
}

func reduceLoadHistory(state State, in cmdLoadHistory) (State, []framework.Effect) {
	id := in.SessionID
	if id == "" {
		id = state.SessionID
	}
	if id != state.SessionID {
		return state, []framework.Effect{effCompleteReply{Reply: in.Reply, Err: ErrSessionChanged}}
	}
	return state, []framework.Effect{effFetchHistory{
		Epoch:     state.Epoch,
		SessionID: id,
		Reply:     in.Reply,
	}}
}

func reduceHistoryResult(state State, in evHistoryResult) (State, []framework.Effect) {
	if in.Err != nil {
		return state, []framework.Effect{effCompleteReply{Reply: in.Reply, Err: in.Err}}
	}
	if in.Epoch != state.Epoch || in.SessionID != state.SessionID {
		return state, []framework.Effect{effCompleteReply{Reply: in.Reply, Err: ErrSessionChanged}}
	}

	msgs := Reconstruct(in.SessionID, in.Turns, in.Now)
	if state.Loading && state.PendingUserID != "" {
		if pending, ok := findMessage(state.Messages, state.PendingUserID); ok {
			if _, dup := findMessage(msgs, pending.ID); !dup {
				msgs = append(msgs, pending)
			}
		}
	}
	state.Messages = msgs
	return state, []framework.Effect{effCompleteReply{Reply: in.Reply}}
}

func reduceClearSession(state State, in cmdClearSession) (State, []framework.Effect) {
	state.Epoch++
	state.SessionID = in.SessionID
	state.Messages = nil
	// Loading stays set until the outstanding request (if any) reports back,
	// which keeps at most one request in flight.
	return state, []framework.Effect{effPersistSession{SessionID: in.SessionID, Reply: in.Reply}}
}

func assistantTurn(in evChatResult) chat.Message {
	msg := chat.Message{
		ID:        in.AssistantID,
		Role:      chat.RoleAssistant,
		CreatedAt: in.Now,
	}
	if in.Err != nil || in.Resp == nil {
		msg.Error = true
		reason := "empty response"
		if in.Err != nil {
			reason = reasonOf(in.Err)
		}
		msg.Content = errorPrefix + reason
		return msg
	}
	msg.Content = in.Resp.Result
	msg.Sources = convertSources(in.Resp.SourceDocuments)
	msg.Confidence = chat.Clamp01(in.Resp.Confidence)
	return msg
}

func convertSources(docs []gateway.SourceDocument) []chat.Source {
	if len(docs) == 0 {
		return nil
	}
	out := make([]chat.Source, 0, len(docs))
	for _, d := range docs {
		out = append(out, chat.Source{
			Text:     d.Content,
			Score:    chat.Clamp01(d.Score),
			Sections: d.AllSections(),
		})
	}
	return out
}

// appendMessage returns a new slice so earlier states never observe the
// addition.
func appendMessage(msgs []chat.Message, m chat.Message) []chat.Message {
	out := make([]chat.Message, len(msgs), len(msgs)+1)
	copy(out, msgs)
	return append(out, m)
}

func findMessage(msgs []chat.Message, id string) (chat.Message, bool) {
	for _, m := range msgs {
		if m.ID == id {
			return m, true
		}
	}
	return chat.Message{}, false
}

func kindOf(err error) gateway.Kind {
	if k := gateway.KindOf(err); k != "" {
		return k
	}
	return gateway.ErrConnectivity
}

// reasonOf renders err for people.
func reasonOf(err error) string {
	var ge *gateway.Error
	if errors.As(err, &ge) {
		return ge.Reason()
	}
	return err.Error()
}
