package controller

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/agrelay/agrelay/common"
	"github.com/agrelay/agrelay/common/ctxkey"
	"github.com/agrelay/agrelay/common/helper"
	"github.com/agrelay/agrelay/monitor"
	"github.com/agrelay/agrelay/relay/adaptor/antigravity"
	"github.com/agrelay/agrelay/relay/model"
	"github.com/agrelay/agrelay/relay/relaymode"
	"github.com/agrelay/agrelay/relay/retry"
)

// qualitySuffixes spice up the prompt for DALL-E style quality/style hints
// the backend has no native knob for.
var (
	qualityHDSuffix    = " (high quality, highly detailed, 4k resolution, hdr)"
	styleVividSuffix   = " (vivid colors, dramatic lighting, rich details)"
	styleNaturalSuffix = " (natural lighting, realistic, photorealistic)"
)

type imageGenerationRequest struct {
	Prompt         string `json:"prompt"`
	Model          string `json:"model,omitempty"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	Style          string `json:"style,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imageDatum struct {
	B64JSON       string `json:"b64_json,omitempty"`
	URL           string `json:"url,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// RelayImageGenerations serves POST /v1/images/generations. The backend
// rejects candidateCount > 1, so n images fan out as n parallel calls on one
// account.
func (r *Relayer) RelayImageGenerations(c *gin.Context) {
	lg := gmw.GetLogger(c)
	start := time.Now()
	defer monitor.ObserveRelayDuration(relaymode.String(relaymode.ImagesGenerations), start)

	var req imageGenerationRequest
	if err := common.UnmarshalBodyReusable(c, &req); err != nil {
		respondError(c, http.StatusBadRequest, model.ErrorTypeInvalidRequest, "invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondError(c, http.StatusBadRequest, model.ErrorTypeInvalidRequest, "prompt is required")
		return
	}

	if req.Model == "" {
		req.Model = antigravity.DefaultImageModel
	}
	if req.N < 1 {
		req.N = 1
	}
	if req.Size == "" {
		req.Size = "1024x1024"
	}
	if req.Quality == "" {
		req.Quality = "standard"
	}
	if req.Style == "" {
		req.Style = "vivid"
	}
	if req.ResponseFormat == "" {
		req.ResponseFormat = "b64_json"
	}

	mapped := r.Models.Resolve(req.Model)
	c.Set(ctxkey.MappedModel, mapped)
	c.Header("X-Mapped-Model", mapped)

	prompt := req.Prompt
	if strings.EqualFold(req.Quality, "hd") {
		prompt += qualityHDSuffix
	}
	switch strings.ToLower(req.Style) {
	case "vivid":
		prompt += styleVividSuffix
	case "natural":
		prompt += styleNaturalSuffix
	}

	imageCfg := antigravity.ParseImageConfig(mapped, req.Size, req.Quality)

	ctx := c.Request.Context()
	ticket, err := r.Tokens.GetToken(ctx, antigravity.RequestTypeImageGen, false, "", mapped)
	if err != nil {
		lg.Warn("token acquisition failed for image generation", zap.Error(err))
		respondError(c, http.StatusServiceUnavailable, model.ErrorTypeUpstream, "Token error: "+err.Error())
		return
	}
	c.Header("X-Account-Email", ticket.Email)

	data, errs := r.fanOutImages(c, ticket.AccessToken, ticket.Email, mapped, req.N, req.ResponseFormat, prompt != req.Prompt, prompt,
		func() *antigravity.Envelope {
			return antigravity.BuildImageEnvelope(ticket.ProjectID, mapped, prompt, imageCfg, nil)
		})

	r.finishImageResponse(c, data, errs, ticket.Email)
}

// RelayImageEdits serves POST /v1/images/edits (multipart). The main image,
// optional mask and any reference images ride inline after the prompt part.
func (r *Relayer) RelayImageEdits(c *gin.Context) {
	lg := gmw.GetLogger(c)
	start := time.Now()
	defer monitor.ObserveRelayDuration(relaymode.String(relaymode.ImagesEdits), start)

	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, http.StatusBadRequest, model.ErrorTypeInvalidRequest, "invalid multipart form: "+err.Error())
		return
	}

	prompt := strings.TrimSpace(formValue(form, "prompt"))
	if prompt == "" {
		respondError(c, http.StatusBadRequest, model.ErrorTypeInvalidRequest, "prompt is required")
		return
	}

	mainImage, err := readFormFile(form, "image")
	if err != nil {
		respondError(c, http.StatusBadRequest, model.ErrorTypeInvalidRequest, err.Error())
		return
	}

	inline := []antigravity.InlineData{{MimeType: "image/png", Data: mainImage}}
	if mask, err := readFormFile(form, "mask"); err == nil {
		inline = append(inline, antigravity.InlineData{MimeType: "image/png", Data: mask})
	}
	for _, ref := range referenceImageFields(form) {
		data, err := readFormFile(form, ref)
		if err != nil {
			continue
		}
		inline = append(inline, antigravity.InlineData{MimeType: "image/jpeg", Data: data})
	}

	modelName := formValue(form, "model")
	if modelName == "" {
		modelName = antigravity.DefaultImageModel
	}
	mapped := r.Models.Resolve(modelName)
	c.Set(ctxkey.MappedModel, mapped)
	c.Header("X-Mapped-Model", mapped)

	n := 1
	if v, err := strconv.Atoi(formValue(form, "n")); err == nil && v > 0 {
		n = v
	}
	responseFormat := formValue(form, "response_format")
	if responseFormat == "" {
		responseFormat = "b64_json"
	}

	// aspect_ratio beats size when both are present; image_size carries the
	// resolution tier in the backend's own vocabulary
	sizeHint := formValue(form, "size")
	if ratio := formValue(form, "aspect_ratio"); ratio != "" {
		sizeHint = ratio
	}
	quality := ""
	switch strings.ToUpper(formValue(form, "image_size")) {
	case "4K":
		quality = "hd"
	case "2K":
		quality = "medium"
	}
	imageCfg := antigravity.ParseImageConfig(mapped, sizeHint, quality)

	if style := formValue(form, "style"); style != "" {
		prompt += ", style: " + style
	}

	ctx := c.Request.Context()
	ticket, err := r.Tokens.GetToken(ctx, antigravity.RequestTypeImageGen, false, "", mapped)
	if err != nil {
		lg.Warn("token acquisition failed for image edit", zap.Error(err))
		respondError(c, http.StatusServiceUnavailable, model.ErrorTypeUpstream, "Token error: "+err.Error())
		return
	}
	c.Header("X-Account-Email", ticket.Email)

	data, errs := r.fanOutImages(c, ticket.AccessToken, ticket.Email, mapped, n, responseFormat, false, prompt,
		func() *antigravity.Envelope {
			return antigravity.BuildImageEditEnvelope(ticket.ProjectID, mapped, prompt, imageCfg, inline)
		})

	r.finishImageResponse(c, data, errs, ticket.Email)
}

// fanOutImages runs n parallel single-candidate calls and gathers whatever
// succeeds. Failures are collected, not fatal, so partial batches still
// return.
func (r *Relayer) fanOutImages(c *gin.Context, bearer, email, mapped string, n int, responseFormat string, revised bool, prompt string, build func() *antigravity.Envelope) ([]imageDatum, []error) {
	ctx := c.Request.Context()
	results := make([][]imageDatum, n)
	failures := make([]error, n)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			resp, err := r.Invoker.Call(ctx, antigravity.MethodGenerateContent, bearer, build(), "")
			if err != nil {
				failures[i] = err
				monitor.RecordImageTask(false)
				return nil
			}

			if resp.StatusCode >= http.StatusBadRequest {
				errBody := readErrorBody(resp)
				failures[i] = errors.Errorf("HTTP %d: %s", resp.StatusCode, truncateForLog(errBody, 512))
				monitor.RecordImageTask(false)
				if marksAccountRateLimited(resp.StatusCode) {
					retryAfter := retry.ParseRetryAfter(resp.Header.Get("Retry-After"))
					go r.Tokens.MarkRateLimited(email, resp.StatusCode, retryAfter, errBody, mapped)
				}
				return nil
			}

			body, err := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if err != nil {
				failures[i] = errors.Wrap(err, "read upstream body")
				monitor.RecordImageTask(false)
				return nil
			}

			parsed, err := antigravity.ParseChatResponse(body)
			if err != nil {
				failures[i] = err
				monitor.RecordImageTask(false)
				return nil
			}
			images := antigravity.ExtractInlineImages(parsed)
			if len(images) == 0 {
				failures[i] = errors.Errorf("upstream returned no image data")
				monitor.RecordImageTask(false)
				return nil
			}

			var data []imageDatum
			for _, img := range images {
				d := imageDatum{}
				if responseFormat == "url" {
					d.URL = fmt.Sprintf("data:%s;base64,%s", img.MimeType, img.Data)
				} else {
					d.B64JSON = img.Data
				}
				if revised {
					d.RevisedPrompt = prompt
				}
				data = append(data, d)
			}
			results[i] = data
			monitor.RecordImageTask(true)
			return nil
		})
	}
	_ = g.Wait()

	var data []imageDatum
	for _, part := range results {
		data = append(data, part...)
	}
	var errs []error
	for _, err := range failures {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return data, errs
}

// finishImageResponse writes the OpenAI images payload: total failure is a
// 502, partial success degrades to whatever arrived.
func (r *Relayer) finishImageResponse(c *gin.Context, data []imageDatum, errs []error, email string) {
	lg := gmw.GetLogger(c)

	if len(data) == 0 {
		parts := make([]string, 0, len(errs))
		for _, err := range errs {
			parts = append(parts, err.Error())
		}
		respondError(c, http.StatusBadGateway, model.ErrorTypeUpstream,
			"All image requests failed: "+strings.Join(parts, "; "))
		return
	}

	if len(errs) > 0 {
		lg.Warn("image batch partially failed",
			zap.Int("succeeded", len(data)),
			zap.Int("failed", len(errs)))
	}
	r.Tokens.MarkSuccess(email)

	c.JSON(http.StatusOK, gin.H{
		"created": helper.GetTimestamp(),
		"data":    data,
	})
}

func formValue(form *multipart.Form, key string) string {
	if vals := form.Value[key]; len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

// referenceImageFields returns extra image file fields (image2, image_1, ...)
// in a stable order. The exact "image" field is the main image and
// "image_size" is a value field, not a file.
func referenceImageFields(form *multipart.Form) []string {
	var fields []string
	for name := range form.File {
		if name == "image" || name == "image_size" || name == "mask" {
			continue
		}
		if strings.HasPrefix(name, "image") {
			fields = append(fields, name)
		}
	}
	sort.Strings(fields)
	return fields
}

// readFormFile loads one multipart file and returns it base64 encoded.
func readFormFile(form *multipart.Form, key string) (string, error) {
	files := form.File[key]
	if len(files) == 0 {
		return "", errors.Errorf("%s file is required", key)
	}
	f, err := files[0].Open()
	if err != nil {
		return "", errors.Wrapf(err, "open %s file", key)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", errors.Wrapf(err, "read %s file", key)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
