package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/archestra-ai/gateway/internal/domain"
	"github.com/archestra-ai/gateway/internal/gwlog"
	"github.com/archestra-ai/gateway/internal/infra/metrics"
)

var orchestratorLog = gwlog.For("orchestrator")

const (
	maxOrchestrationRounds = 10
	maxOrchestrationBytes  = 1 << 20 // 1 MiB, both per-message precondition and overall stream cap
	titleGenerationRounds  = 4
	titleGenerationCap     = 30 * time.Second
)

const thinkOpenTag = "<think>"
const thinkCloseTag = "</think>"

type chatStreamRequestBody struct {
	SessionID string                  `json:"session_id"`
	Model     string                  `json:"model"`
	Message   string                  `json:"message"`
	Options   *domain.GenerateOptions `json:"options,omitempty"`
	Tools     []chatStreamToolRef     `json:"tools,omitempty"`
}

// chatStreamToolRef accepts either a fully-specified tool descriptor or a
// bare "Server_tool" name to be resolved against the registry.
type chatStreamToolRef struct {
	Name        string                      `json:"name"`
	Description string                      `json:"description,omitempty"`
	InputSchema *domain.MCPToolInputSchema  `json:"inputSchema,omitempty"`
}

// UnmarshalJSON accepts either a bare JSON string name or a descriptor object.
func (t *chatStreamToolRef) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*t = chatStreamToolRef{Name: name}
		return nil
	}
	type plain chatStreamToolRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = chatStreamToolRef(p)
	return nil
}

// handleChatStream implements POST /llm/ollama/stream: the tool-calling
// loop that bridges the streaming model to MCP tools, emitting a typed SSE
// event protocol until the turn completes or fails.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatStreamRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := uuid.Parse(req.SessionID); err != nil {
		writeJSONError(w, http.StatusBadRequest, domain.ErrInvalidSessionID.Error())
		return
	}
	if req.Model == "" {
		writeJSONError(w, http.StatusBadRequest, domain.ErrMissingModel.Error())
		return
	}
	if req.Message == "" {
		writeJSONError(w, http.StatusBadRequest, domain.ErrMissingMessage.Error())
		return
	}
	if len(req.Message) > maxOrchestrationBytes {
		writeJSONError(w, http.StatusBadRequest, domain.ErrMessageTooLarge.Error())
		return
	}

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	default:
		metrics.OrchestrationsRejected.Inc()
		sse, err := newSSEWriter(w)
		if err != nil {
			writeJSONError(w, http.StatusTooManyRequests, domain.ErrOrchestratorBusy.Error())
			return
		}
		_ = sse.error(domain.ErrOrchestratorBusy.Error())
		_ = sse.done()
		return
	}

	metrics.OrchestrationsStarted.Inc()

	sse, err := newSSEWriter(w)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	o := &orchestration{
		server:    s,
		sse:       sse,
		sessionID: req.SessionID,
		model:     req.Model,
		options:   req.Options,
	}
	// The orchestration runs to completion even if the client disconnects
	// mid-stream: persistence must not depend on a live SSE connection, so
	// cancellation of the request context is stripped before it reaches run.
	o.run(context.WithoutCancel(r.Context()), req.Message, req.Tools)
}

type orchestration struct {
	server    *Server
	sse       *sseWriter
	sessionID string
	model     string
	options   *domain.GenerateOptions

	textStarted  bool
	overallBytes int
}

const textMainID = "text-main"

func (o *orchestration) run(ctx context.Context, firstMessage string, toolRefs []chatStreamToolRef) {
	chat, err := o.server.chats.FindChatBySession(o.sessionID)
	if err != nil {
		orchestratorLog.Error("find chat %s: %v", o.sessionID, err)
		_ = o.sse.error(err.Error())
		_ = o.sse.done()
		return
	}
	if chat == nil {
		chat, err = o.server.chats.CreateChatWithSession(o.sessionID, o.model)
		if err != nil {
			_ = o.sse.error(err.Error())
			_ = o.sse.done()
			return
		}
	}

	tools := o.resolveTools(ctx, toolRefs)

	if _, err := o.server.chats.AppendInteraction(o.sessionID, domain.InteractionPayload{
		Role:    string(domain.RoleUser),
		Content: firstMessage,
	}); err != nil {
		orchestratorLog.Error("append user interaction: %v", err)
		_ = o.sse.error(err.Error())
		_ = o.sse.done()
		return
	}

	for round := 0; round < maxOrchestrationRounds; round++ {
		history, err := o.server.chats.FirstNInteractions(o.sessionID, math.MaxInt32)
		if err != nil {
			_ = o.sse.error(err.Error())
			_ = o.sse.done()
			return
		}
		messages := make([]domain.ChatMessage, 0, len(history))
		for _, h := range history {
			var p domain.InteractionPayload
			if err := json.Unmarshal(h.Payload, &p); err != nil {
				continue
			}
			messages = append(messages, domain.ChatMessage{
				Role:      domain.ChatRole(p.Role),
				Content:   p.Content,
				ToolCalls: p.ToolCalls,
			})
		}

		deltas, err := o.server.llm.ChatStream(ctx, domain.ChatStreamRequest{
			Model:    o.model,
			Messages: messages,
			Options:  o.options,
			Tools:    tools,
		})
		if err != nil {
			_ = o.sse.error(err.Error())
			_ = o.sse.done()
			return
		}

		contentBuf, textDeltas, toolCalls, aborted := o.drain(ctx, deltas)
		if aborted {
			return
		}

		if len(toolCalls) > 0 && round < maxOrchestrationRounds-1 {
			if _, err := o.server.chats.AppendInteraction(o.sessionID, domain.InteractionPayload{
				Role:      string(domain.RoleAssistant),
				Content:   contentBuf,
				ToolCalls: toolCalls,
			}); err != nil {
				orchestratorLog.Error("append assistant interaction: %v", err)
			}
			o.invokeTools(ctx, toolCalls)
			continue
		}

		o.finish(chat, contentBuf, textDeltas, toolCalls)
		return
	}

	_ = o.sse.error("maximum tool-calling rounds exceeded")
	_ = o.sse.done()
}

// drain accumulates deltas into a round's content/tool-call buffers,
// filtering out <think>...</think> spans and enforcing the overall 1 MiB
// stream cap.
func (o *orchestration) drain(ctx context.Context, deltas <-chan domain.ChatDelta) (contentBuf string, textDeltas []string, toolCalls []domain.ToolCall, aborted bool) {
	inThink := false
	var carry string

	for {
		select {
		case <-ctx.Done():
			return contentBuf, textDeltas, toolCalls, true
		case delta, ok := <-deltas:
			if !ok {
				return contentBuf, textDeltas, toolCalls, false
			}

			text := carry + delta.Content
			carry = ""
			filtered, stillOpen, trailing := filterThink(text, inThink)
			inThink = stillOpen
			carry = trailing

			if filtered != "" {
				o.overallBytes += len(filtered)
				if o.overallBytes > maxOrchestrationBytes {
					_ = o.sse.error(domain.ErrOutputSizeCapped.Error())
					_ = o.sse.done()
					return contentBuf, textDeltas, toolCalls, true
				}
				contentBuf += filtered
				textDeltas = append(textDeltas, filtered)
			}

			toolCalls = append(toolCalls, delta.ToolCalls...)

			if delta.Done {
				return contentBuf, textDeltas, toolCalls, false
			}
		}
	}
}

// filterThink strips <think>...</think> spans from text, carrying over a
// partial opening/closing tag that may have been split across deltas. It
// returns the visible text, whether the stream is still inside a think
// span, and any trailing partial-tag text to carry into the next delta.
func filterThink(text string, inThink bool) (visible string, stillInThink bool, carry string) {
	for {
		if inThink {
			idx := strings.Index(text, thinkCloseTag)
			if idx == -1 {
				if partialTagSuffix(text, thinkCloseTag) {
					return visible, true, text
				}
				return visible, true, ""
			}
			text = text[idx+len(thinkCloseTag):]
			inThink = false
			continue
		}
		idx := strings.Index(text, thinkOpenTag)
		if idx == -1 {
			if partialTagSuffix(text, thinkOpenTag) {
				cut := partialTagCutPoint(text, thinkOpenTag)
				visible += text[:cut]
				return visible, false, text[cut:]
			}
			visible += text
			return visible, false, ""
		}
		visible += text[:idx]
		text = text[idx+len(thinkOpenTag):]
		inThink = true
	}
}

// partialTagSuffix reports whether text ends with a non-empty prefix of tag,
// meaning the tag may be about to complete on the next delta.
func partialTagSuffix(text, tag string) bool {
	return partialTagCutPoint(text, tag) < len(text)
}

func partialTagCutPoint(text, tag string) int {
	max := len(tag) - 1
	if max > len(text) {
		max = len(text)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(text, tag[:n]) {
			return len(text) - n
		}
	}
	return len(text)
}

// invokeTools runs each tool call against its server in order, emitting the
// tool-input/tool-output SSE events and persisting the tool result.
func (o *orchestration) invokeTools(ctx context.Context, toolCalls []domain.ToolCall) {
	for _, tc := range toolCalls {
		_ = o.sse.toolInputStart(tc.ID, tc.Name)

		var input any
		_ = json.Unmarshal(tc.Arguments, &input)
		_ = o.sse.toolInputAvailable(tc.ID, tc.Name, input)

		serverName, toolName, ok := splitToolName(tc.Name)
		var resultContent string
		var isError bool
		if !ok {
			isError = true
			resultContent = fmt.Sprintf("Invalid tool name format: %s", tc.Name)
		} else {
			body, err := json.Marshal(map[string]any{
				"jsonrpc": "2.0",
				"id":      tc.ID,
				"method":  "tools/call",
				"params":  map[string]any{"name": toolName, "arguments": input},
			})
			if err != nil {
				isError = true
				resultContent = err.Error()
			} else {
				reply, err := o.server.registry.Forward(ctx, serverName, body)
				if err != nil {
					isError = true
					resultContent = err.Error()
				} else {
					resultContent = string(reply)
					metrics.ToolCallsInvoked.WithLabelValues(serverName).Inc()
				}
			}
		}

		output := map[string]any{"content": resultContent, "isError": isError}
		_ = o.sse.toolOutputAvailable(tc.ID, output)

		outputJSON, _ := json.Marshal(output)
		if _, err := o.server.chats.AppendInteraction(o.sessionID, domain.InteractionPayload{
			Role:       string(domain.RoleTool),
			Content:    resultContent,
			ToolResult: outputJSON,
		}); err != nil {
			orchestratorLog.Error("append tool interaction: %v", err)
		}
	}
}

// splitToolName splits a "Server_tool" identifier at its first underscore.
func splitToolName(name string) (server, tool string, ok bool) {
	idx := strings.Index(name, "_")
	if idx <= 0 || idx == len(name)-1 {
		return "", "", false
	}
	return name[:idx], name[idx+1:], true
}

// finish streams any buffered terminal text, persists the final assistant
// interaction, fires title generation at the fourth interaction, and closes
// the SSE stream.
func (o *orchestration) finish(chat *domain.Chat, contentBuf string, textDeltas []string, toolCalls []domain.ToolCall) {
	if len(textDeltas) > 0 {
		if !o.textStarted {
			_ = o.sse.textStart(textMainID)
			o.textStarted = true
		}
		for _, d := range textDeltas {
			_ = o.sse.textDelta(textMainID, d)
		}
	}

	if _, err := o.server.chats.AppendInteraction(o.sessionID, domain.InteractionPayload{
		Role:      string(domain.RoleAssistant),
		Content:   contentBuf,
		ToolCalls: toolCalls,
	}); err != nil {
		orchestratorLog.Error("append final assistant interaction: %v", err)
	}

	count, err := o.server.chats.CountInteractions(o.sessionID)
	if err == nil && count == titleGenerationRounds && chat.Title == nil {
		go o.generateTitle(chat.ID)
	}

	if o.textStarted {
		_ = o.sse.textEnd(textMainID)
	}
	_ = o.sse.done()
	metrics.OrchestrationsCompleted.Inc()
}

// generateTitle runs detached from the request, capped at 30s, and
// broadcasts the result over the WebSocket hub on success.
func (o *orchestration) generateTitle(chatID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), titleGenerationCap)
	defer cancel()

	history, err := o.server.chats.FirstNInteractions(o.sessionID, titleGenerationRounds)
	if err != nil {
		return
	}
	var sb strings.Builder
	for _, h := range history {
		var p domain.InteractionPayload
		if err := json.Unmarshal(h.Payload, &p); err != nil {
			continue
		}
		sb.WriteString(p.Role)
		sb.WriteString(": ")
		sb.WriteString(p.Content)
		sb.WriteString("\n")
	}

	title, err := o.server.llm.GenerateTitle(ctx, "", sb.String())
	if err != nil || title == "" {
		return
	}
	if err := o.server.chats.SetGeneratedTitle(chatID, title); err != nil {
		orchestratorLog.Error("set title for chat %d: %v", chatID, err)
		return
	}
	if o.server.hub != nil {
		o.server.hub.Broadcast(BroadcastMessage{
			Type:    "chat-title-updated",
			Payload: map[string]any{"chat_id": chatID, "title": title},
		})
	}
}

// resolveTools turns the request's tool references into full descriptors,
// issuing tools/list against each named server and falling back to a
// generic open-object schema when resolution fails.
func (o *orchestration) resolveTools(ctx context.Context, refs []chatStreamToolRef) []domain.MCPTool {
	if len(refs) == 0 {
		return nil
	}
	out := make([]domain.MCPTool, 0, len(refs))
	for _, ref := range refs {
		if ref.InputSchema != nil {
			out = append(out, domain.MCPTool{
				Name:        ref.Name,
				Description: ref.Description,
				InputSchema: *ref.InputSchema,
			})
			continue
		}
		out = append(out, o.resolveToolByName(ctx, ref.Name))
	}
	return out
}

func (o *orchestration) resolveToolByName(ctx context.Context, fullName string) domain.MCPTool {
	serverName, toolName, ok := splitToolName(fullName)
	if !ok {
		return fabricateTool(fullName)
	}

	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      "tools-list-" + fullName,
		"method":  "tools/list",
	})
	if err != nil {
		return fabricateTool(fullName)
	}
	reply, err := o.server.registry.Forward(ctx, serverName, body)
	if err != nil {
		return fabricateTool(fullName)
	}

	var parsed struct {
		Result struct {
			Tools []domain.MCPTool `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(reply, &parsed); err != nil {
		return fabricateTool(fullName)
	}
	for _, t := range parsed.Result.Tools {
		if t.Name == toolName {
			return domain.MCPTool{Name: fullName, Description: t.Description, InputSchema: t.InputSchema}
		}
	}
	return fabricateTool(fullName)
}

func fabricateTool(fullName string) domain.MCPTool {
	return domain.MCPTool{
		Name:        fullName,
		Description: fmt.Sprintf("Tool %s (descriptor unavailable)", fullName),
		InputSchema: domain.OpenSchema(),
	}
}
