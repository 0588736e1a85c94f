package controller

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/agrelay/agrelay/common"
	"github.com/agrelay/agrelay/common/ctxkey"
	"github.com/agrelay/agrelay/common/helper"
	"github.com/agrelay/agrelay/common/render"
	"github.com/agrelay/agrelay/monitor"
	"github.com/agrelay/agrelay/relay/adaptor/antigravity"
	"github.com/agrelay/agrelay/relay/model"
	"github.com/agrelay/agrelay/relay/normalizer"
	"github.com/agrelay/agrelay/relay/relaymode"
	"github.com/agrelay/agrelay/relay/retry"
	"github.com/agrelay/agrelay/relay/streaming"
	"github.com/agrelay/agrelay/relay/token"
)

// signatureRecoveryPrompt is appended to the last user message when the
// backend rejects the conversation history over a corrupted thought
// signature, so the retry regenerates instead of replaying the poisoned
// block.
const signatureRecoveryPrompt = "\n\n[System Recovery] Your previous output contained an invalid signature. Please regenerate the response without the corrupted signature block."

// rate-limit style statuses that cool the account down for the mapped model
func marksAccountRateLimited(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable, 529:
		return true
	default:
		return false
	}
}

// RelayText serves the three text endpoints. Every inbound dialect is
// normalized to chat messages, relayed upstream as a stream regardless of
// what the client asked for, and translated back to the endpoint's dialect.
func (r *Relayer) RelayText(c *gin.Context, mode int) {
	lg := gmw.GetLogger(c)
	start := time.Now()
	modeName := relaymode.String(mode)
	defer monitor.ObserveRelayDuration(modeName, start)

	body, err := common.GetRequestBody(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, model.ErrorTypeInvalidRequest, "read request body: "+err.Error())
		return
	}
	_ = common.LogClientRequestPayload(c, modeName, common.DefaultLogBodyLimit)

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		respondError(c, http.StatusBadRequest, model.ErrorTypeInvalidRequest, "invalid JSON body: "+err.Error())
		return
	}

	dialect := normalizer.Normalize(raw)
	canonical, err := json.Marshal(raw)
	if err != nil {
		respondError(c, http.StatusInternalServerError, model.ErrorTypeServer, "canonicalize request: "+err.Error())
		return
	}
	var req model.GeneralOpenAIRequest
	if err := json.Unmarshal(canonical, &req); err != nil {
		respondError(c, http.StatusBadRequest, model.ErrorTypeInvalidRequest, "invalid request shape: "+err.Error())
		return
	}

	mapped := r.Models.Resolve(req.Model)
	displayModel := req.Model
	if displayModel == "" {
		displayModel = mapped
	}
	c.Set(ctxkey.RequestModel, req.Model)
	c.Set(ctxkey.MappedModel, mapped)
	c.Header("X-Mapped-Model", mapped)

	ctx := c.Request.Context()
	maxAttempts := r.attemptBudget()
	reqCfg := antigravity.ResolveRequestConfig(req.Model, mapped, req.Tools, "", "")
	// fingerprint once, before any retry mutates the messages: signature
	// recovery appends to the last user turn and must still land the next
	// attempt on the same sticky account
	sessionID := token.Fingerprint(&req)
	var lastError, lastEmail string
	forceRotate := false

	for attempt := 0; attempt < maxAttempts; attempt++ {
		ticket, err := r.Tokens.GetToken(ctx, reqCfg.RequestType, forceRotate, sessionID, mapped)
		if err != nil {
			lg.Warn("token acquisition failed",
				zap.String("request_type", reqCfg.RequestType),
				zap.Int("attempt", attempt),
				zap.Error(err))
			respondError(c, http.StatusServiceUnavailable, model.ErrorTypeUpstream, "Token error: "+err.Error())
			return
		}
		lastEmail = ticket.Email
		c.Set(ctxkey.AccountEmail, ticket.Email)
		c.Header("X-Account-Email", ticket.Email)
		if forceRotate {
			monitor.RecordRotation()
		}

		env := antigravity.ConvertRequest(req, ticket.ProjectID, mapped, reqCfg.RequestType)

		// always stream upstream, even for non-streaming clients: the
		// backend's streaming endpoint is the reliable one and the head of
		// the stream doubles as a fast failure probe
		resp, err := r.Invoker.Call(ctx, antigravity.MethodStreamGenerateContent, ticket.AccessToken, env, antigravity.QueryAltSSE)
		if err != nil {
			lastError = err.Error()
			monitor.RecordAttempt(modeName, 0)
			lg.Warn("upstream call failed",
				zap.Int("attempt", attempt),
				zap.String("account", ticket.Email),
				zap.Error(err))
			strategy := retry.ClassifyTransport()
			forceRotate = strategy.Rotate
			if attempt+1 < maxAttempts {
				if retry.Apply(ctx, strategy, attempt) != nil {
					break
				}
			}
			continue
		}
		monitor.RecordAttempt(modeName, resp.StatusCode)

		if resp.StatusCode >= http.StatusBadRequest {
			errBody := readErrorBody(resp)
			lastError = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, errBody)
			lg.Warn("upstream attempt rejected",
				zap.Int("attempt", attempt),
				zap.Int("status", resp.StatusCode),
				zap.String("account", ticket.Email),
				zap.String("body", truncateForLog(errBody, 512)))

			retryAfter := retry.ParseRetryAfter(resp.Header.Get("Retry-After"))
			if marksAccountRateLimited(resp.StatusCode) {
				go r.Tokens.MarkRateLimited(ticket.Email, resp.StatusCode, retryAfter, errBody, mapped)
			}

			strategy := retry.Classify(resp.StatusCode, errBody, retryAfter)
			if !strategy.Retryable() {
				passthroughUpstreamError(c, resp.StatusCode, []byte(errBody), resp.Header.Get("Content-Type"))
				return
			}
			if strategy.SignatureRecovery {
				if last := req.LastUserMessage(); last != nil {
					last.AppendText(signatureRecoveryPrompt)
				}
				forceRotate = false
			} else {
				forceRotate = strategy.Rotate
			}
			if attempt+1 < maxAttempts {
				if retry.Apply(ctx, strategy, attempt) != nil {
					break
				}
			}
			continue
		}

		stream := r.newStream(resp, mode, dialect, req.Stream, displayModel)
		first, err := streaming.Peek(ctx, stream, r.PeekTimeout)
		if err != nil {
			go drainChunks(stream)
			lastError = err.Error()
			monitor.RecordPeekRetry()
			lg.Warn("stream peek failed",
				zap.Int("attempt", attempt),
				zap.String("account", ticket.Email),
				zap.Error(err))
			strategy := retry.ClassifyTransport()
			forceRotate = strategy.Rotate
			if attempt+1 < maxAttempts {
				if retry.Apply(ctx, strategy, attempt) != nil {
					break
				}
			}
			continue
		}

		r.Tokens.MarkSuccess(ticket.Email)

		if req.Stream {
			r.relayStream(c, first, stream)
			return
		}
		r.relayCollected(c, mode, dialect, displayModel, first, stream)
		return
	}

	monitor.RecordExhausted(modeName)
	if lastEmail != "" {
		c.Header("X-Account-Email", lastEmail)
	}
	lg.Error("all accounts exhausted",
		zap.Int("attempts", maxAttempts),
		zap.String("last_error", truncateForLog(lastError, 512)))
	respondError(c, http.StatusTooManyRequests, model.ErrorTypeUpstream,
		"All accounts exhausted. Last error: "+lastError)
}

// responseDialect resolves the outbound dialect. /v1/chat/completions always
// speaks chat; /v1/completions and /v1/responses auto-detect from the inbound
// payload shape, falling back to the endpoint's native dialect.
func responseDialect(mode int, dialect normalizer.Dialect) normalizer.Dialect {
	if mode == relaymode.ChatCompletions {
		return normalizer.DialectChat
	}
	if dialect != normalizer.DialectChat {
		return dialect
	}
	if mode == relaymode.ResponseAPI {
		return normalizer.DialectCodex
	}
	return normalizer.DialectLegacy
}

// newStream picks the translated stream dialect. Non-streaming clients
// always get chat frames because the collector folds that dialect.
func (r *Relayer) newStream(resp *http.Response, mode int, dialect normalizer.Dialect, clientWantsStream bool, displayModel string) <-chan streaming.Chunk {
	if !clientWantsStream {
		return antigravity.NewChatStream(resp.Body, displayModel)
	}
	switch responseDialect(mode, dialect) {
	case normalizer.DialectLegacy:
		return antigravity.NewLegacyStream(resp.Body, displayModel)
	case normalizer.DialectCodex:
		return antigravity.NewCodexStream(resp.Body, displayModel)
	default:
		return antigravity.NewChatStream(resp.Body, displayModel)
	}
}

// relayStream passes translated SSE frames straight through to the client.
func (r *Relayer) relayStream(c *gin.Context, first []byte, stream <-chan streaming.Chunk) {
	lg := gmw.GetLogger(c)
	common.SetEventStreamHeaders(c)

	if err := render.RawBytes(c, first); err != nil {
		lg.Debug("client went away before first frame", zap.Error(err))
		go drainChunks(stream)
		return
	}
	for chunk := range stream {
		if chunk.Err != nil {
			lg.Warn("upstream stream ended with error", zap.Error(chunk.Err))
			return
		}
		if err := render.RawBytes(c, chunk.Data); err != nil {
			lg.Debug("client disconnected mid-stream", zap.Error(err))
			go drainChunks(stream)
			return
		}
	}
}

// relayCollected folds the stream into one JSON reply in the endpoint's
// dialect.
func (r *Relayer) relayCollected(c *gin.Context, mode int, dialect normalizer.Dialect, displayModel string, first []byte, stream <-chan streaming.Chunk) {
	collected, err := streaming.Collect(streaming.Prepend(first, stream))
	if err != nil {
		respondError(c, http.StatusBadGateway, model.ErrorTypeUpstream, "collect upstream stream: "+err.Error())
		return
	}
	collected.Model = displayModel

	switch responseDialect(mode, dialect) {
	case normalizer.DialectLegacy:
		c.JSON(http.StatusOK, projectLegacy(collected))
	case normalizer.DialectCodex:
		c.JSON(http.StatusOK, projectResponses(collected))
	default:
		c.JSON(http.StatusOK, collected)
	}
}

// projectLegacy rewrites a chat completion as a text_completion.
func projectLegacy(resp *model.TextResponse) *model.LegacyTextResponse {
	out := &model.LegacyTextResponse{
		Id:      resp.Id,
		Object:  "text_completion",
		Created: resp.Created,
		Model:   resp.Model,
		Usage:   resp.Usage,
	}
	if out.Id == "" {
		out.Id = "cmpl-" + newID()
	}
	if out.Created == 0 {
		out.Created = helper.GetTimestamp()
	}
	for _, choice := range resp.Choices {
		out.Choices = append(out.Choices, model.LegacyChoice{
			Text:         choice.Message.StringContent(),
			Index:        choice.Index,
			FinishReason: choice.FinishReason,
		})
	}
	return out
}

// projectResponses rewrites a chat completion as a Responses API object.
func projectResponses(resp *model.TextResponse) gin.H {
	var output []gin.H
	for _, choice := range resp.Choices {
		output = append(output, gin.H{
			"type": "message",
			"role": "assistant",
			"content": []gin.H{{
				"type": "output_text",
				"text": choice.Message.StringContent(),
			}},
		})
	}
	out := gin.H{
		"id":         "resp_" + newID(),
		"object":     "response",
		"created_at": resp.Created,
		"model":      resp.Model,
		"status":     "completed",
		"output":     output,
	}
	if resp.Usage != nil {
		out["usage"] = gin.H{
			"input_tokens":  resp.Usage.PromptTokens,
			"output_tokens": resp.Usage.CompletionTokens,
			"total_tokens":  resp.Usage.TotalTokens,
		}
	}
	return out
}
