package payiproxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/providers"
	"trailblazer_ai/internal/utils"
)

// VehicleInfo is the optional vehicle block of an analyze request.
type VehicleInfo struct {
	Make             string   `json:"make"`
	Model            string   `json:"model"`
	Year             int      `json:"year,omitempty"`
	Features         []string `json:"features,omitempty"`
	SuspensionBrand  string   `json:"suspension_brand,omitempty"`
	SuspensionTravel string   `json:"suspension_travel,omitempty"`
}

// AnalysisContext is the optional trail block of an analyze request.
type AnalysisContext struct {
	TrailName       string `json:"trail_name,omitempty"`
	TrailLocation   string `json:"trail_location,omitempty"`
	AdditionalNotes string `json:"additional_notes,omitempty"`
}

// AnalyzeRequest is the body of POST /analyze. Images are data URLs or raw base64.
type AnalyzeRequest struct {
	Images            []string          `json:"images"`
	Model             string            `json:"model,omitempty"`
	Prompt            string            `json:"prompt,omitempty"`
	MaxTokens         int               `json:"max_tokens,omitempty"`
	VehicleInfo       *VehicleInfo      `json:"vehicle_info,omitempty"`
	Context           *AnalysisContext  `json:"context,omitempty"`
	UserID            string            `json:"user_id,omitempty"`
	AccountName       string            `json:"account_name,omitempty"`
	LimitIDs          []string          `json:"limit_ids,omitempty"`
	UseCaseName       string            `json:"use_case_name,omitempty"`
	UseCaseVersion    int               `json:"use_case_version,omitempty"`
	UseCaseProperties map[string]string `json:"use_case_properties,omitempty"`
	RequestProperties map[string]string `json:"request_properties,omitempty"`
}

// handleAnalyze runs one attributed multimodal call.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		utils.RespondWithJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid request body"})
		return
	}
	if req.Images == nil {
		utils.RespondWithJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "images is required"})
		return
	}
	if req.Model == "" {
		req.Model = defaultModel
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}
	s.logger.Info("Received analysis request", "images", len(req.Images), "model", req.Model)

	prompt := req.Prompt
	if prompt == "" {
		prompt = basicAnalysisPrompt(req)
		s.logger.Debug("Using fallback prompt")
	}

	images := make([]models.ImageInput, len(req.Images))
	for i, payload := range req.Images {
		img, err := providers.ParseImagePayload(payload)
		if err != nil {
			utils.RespondWithJSON(w, http.StatusBadRequest, map[string]string{"detail": fmt.Sprintf("image %d: %v", i, err)})
			return
		}
		images[i] = img
	}
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(images)+1)
	if len(images) > 0 {
		encoded, err := providers.EncodeImages(r.Context(), images, providers.LimitsFor(models.ProviderAnthropic, true))
		if err != nil {
			utils.RespondWithJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		for _, img := range encoded {
			blocks = append(blocks, sdk.NewImageBlockBase64(img.MediaType, img.Data))
		}
	}
	blocks = append(blocks, sdk.NewTextBlock(prompt))

	name := req.UseCaseName
	if name == "" {
		name = s.settings.DefaultUseCase
	}
	uc := s.newUseCase(name, req.UseCaseVersion, req.UserID, req.AccountName, req.LimitIDs)
	uc.Properties = req.UseCaseProperties
	if len(uc.Properties) == 0 {
		uc.Properties = defaultUseCaseProperties(req)
	}
	uc.RequestProps = req.RequestProperties
	if len(uc.RequestProps) == 0 {
		uc.RequestProps = map[string]string{
			"image_count":      strconv.Itoa(len(req.Images)),
			"model_used":       req.Model,
			"has_vehicle_info": strconv.FormatBool(req.VehicleInfo != nil),
			"has_context":      strconv.FormatBool(req.Context != nil),
		}
	}

	out, err := s.call(r.Context(), sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	}, uc)
	if err != nil {
		s.writeError(w, "Analysis", err)
		return
	}

	s.logger.Info("Analysis complete",
		"use_case", uc.Name, "use_case_id", uc.ID,
		"input_tokens", out.Usage.InputTokens, "output_tokens", out.Usage.OutputTokens)
	utils.RespondWithJSON(w, http.StatusOK, s.response(out, uc))
}

// TrailFinderRequest is the body of POST /trail-finder.
type TrailFinderRequest struct {
	Prompt            string            `json:"prompt"`
	Model             string            `json:"model,omitempty"`
	MaxTokens         int               `json:"max_tokens,omitempty"`
	UserID            string            `json:"user_id,omitempty"`
	AccountName       string            `json:"account_name,omitempty"`
	LimitIDs          []string          `json:"limit_ids,omitempty"`
	UseCaseName       string            `json:"use_case_name,omitempty"`
	UseCaseVersion    int               `json:"use_case_version,omitempty"`
	UseCaseProperties map[string]string `json:"use_case_properties,omitempty"`
	RequestProperties map[string]string `json:"request_properties,omitempty"`
}

// handleTrailFinder runs one attributed call with the web search tool enabled.
func (s *Server) handleTrailFinder(w http.ResponseWriter, r *http.Request) {
	var req TrailFinderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		utils.RespondWithJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		utils.RespondWithJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "prompt is required"})
		return
	}
	if req.Model == "" {
		req.Model = defaultModel
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}

	name := req.UseCaseName
	if name == "" {
		name = trailFinderUseCase
	}
	uc := s.newUseCase(name, req.UseCaseVersion, req.UserID, req.AccountName, req.LimitIDs)
	uc.Properties = req.UseCaseProperties
	uc.RequestProps = req.RequestProperties

	out, err := s.call(r.Context(), sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
		Tools: []sdk.ToolUnionParam{{
			OfWebSearchTool20250305: &sdk.WebSearchTool20250305Param{MaxUses: sdk.Int(webSearchMaxUses)},
		}},
	}, uc)
	if err != nil {
		s.writeError(w, "Trail search", err)
		return
	}

	s.logger.Info("Trail search complete",
		"use_case_id", uc.ID, "input_tokens", out.Usage.InputTokens, "output_tokens", out.Usage.OutputTokens)
	utils.RespondWithJSON(w, http.StatusOK, s.response(out, uc))
}

func (s *Server) response(out *completion, uc useCase) providers.ProxyResponse {
	return providers.ProxyResponse{
		Success:       true,
		Text:          out.Text,
		Model:         out.Model,
		Usage:         out.Usage,
		UseCaseID:     uc.ID,
		PayiRequestID: out.PayIRequestID,
	}
}

func defaultUseCaseProperties(req AnalyzeRequest) map[string]string {
	props := map[string]string{}
	if c := req.Context; c != nil {
		if c.TrailName != "" {
			props["trail_name"] = c.TrailName
		}
		if c.TrailLocation != "" {
			props["trail_location"] = c.TrailLocation
		}
	}
	if v := req.VehicleInfo; v != nil {
		props["vehicle_make"] = v.Make
		props["vehicle_model"] = v.Model
		if v.Year > 0 {
			props["vehicle_year"] = strconv.Itoa(v.Year)
		}
	}
	return props
}

// basicAnalysisPrompt is used when the caller sends no prompt of its own.
func basicAnalysisPrompt(req AnalyzeRequest) string {
	lines := []string{
		"Analyze these trail photos for off-road/overlanding conditions.",
		"Provide a JSON response with the following structure:",
		"{",
		`  "difficulty": 1-5,`,
		`  "trailType": ["dirt road", "rock crawl", etc],`,
		`  "conditions": ["dry", "muddy", etc],`,
		`  "hazards": ["steep grades", "loose rocks", etc],`,
		`  "recommendations": ["air down tires", etc],`,
		`  "bestFor": ["4x4 trucks", "ATVs", etc],`,
		`  "summary": "Brief trail description"`,
		"}",
	}
	if v := req.VehicleInfo; v != nil {
		year := ""
		if v.Year > 0 {
			year = strconv.Itoa(v.Year)
		}
		lines = append(lines, fmt.Sprintf("\nVehicle: %s %s %s", year, v.Make, v.Model))
		if len(v.Features) > 0 {
			lines = append(lines, "Features: "+strings.Join(v.Features, ", "))
		}
	}
	if c := req.Context; c != nil {
		if c.TrailName != "" {
			lines = append(lines, "\nTrail: "+c.TrailName)
		}
		if c.TrailLocation != "" {
			lines = append(lines, "Location: "+c.TrailLocation)
		}
		if c.AdditionalNotes != "" {
			lines = append(lines, "Notes: "+c.AdditionalNotes)
		}
	}
	return strings.Join(lines, "\n")
}
