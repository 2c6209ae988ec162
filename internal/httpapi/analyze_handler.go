package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"trailblazer_ai/internal/analyzer"
	"trailblazer_ai/internal/middleware"
	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/providers"
	"trailblazer_ai/internal/utils"
)

const multipartMemory = 32 << 20

// AnalyzeRequest is the JSON form of POST /v1/analyze. Images are data URLs or raw base64.
type AnalyzeRequest struct {
	Images      []string               `json:"images"`
	Model       string                 `json:"model,omitempty"`
	VehicleInfo *models.VehicleProfile `json:"vehicleInfo,omitempty"`
	Context     *models.TrailContext   `json:"context,omitempty"`
	Verify      bool                   `json:"verify,omitempty"`
	UseCase     string                 `json:"useCase,omitempty"`
}

// handleAnalyze accepts JSON or multipart/form-data uploads.
//
// Flow:
//  1. Bound the body
//  2. Decode images into byte buffers (format sniffed when undeclared)
//  3. Run the analysis
//  4. Map analyzer errors onto statuses
func (d *Dependencies) handleAnalyze(maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if maxBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}

		req, err := decodeAnalyzeRequest(r)
		if err != nil {
			var ive *providers.ImageValidationError
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				utils.RespondWithTypedError(w, http.StatusRequestEntityTooLarge, string(analyzer.KindValidation),
					fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), 0)
			case errors.As(err, &ive):
				utils.RespondWithTypedError(w, http.StatusBadRequest, string(analyzer.KindValidation), ive.Error(), 0)
			default:
				utils.RespondWithTypedError(w, http.StatusBadRequest, string(analyzer.KindValidation), err.Error(), 0)
			}
			return
		}
		req.UserID = middleware.GetUserID(r.Context())

		result, err := d.Analyzer.Analyze(r.Context(), req)
		if err != nil {
			d.writeAnalyzerError(w, err)
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, result)
	}
}

func (d *Dependencies) handleTrailFinder(w http.ResponseWriter, r *http.Request) {
	var q models.TrailSearch
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&q); err != nil {
		utils.RespondWithTypedError(w, http.StatusBadRequest, string(analyzer.KindValidation), "invalid JSON body", 0)
		return
	}
	q.UserID = middleware.GetUserID(r.Context())

	result, err := d.Analyzer.FindTrails(r.Context(), q)
	if err != nil {
		d.writeAnalyzerError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, result)
}

func (d *Dependencies) writeAnalyzerError(w http.ResponseWriter, err error) {
	var ae *analyzer.Error
	if !errors.As(err, &ae) {
		d.log().Error("Unclassified analysis error", "error", err)
		utils.RespondWithTypedError(w, http.StatusInternalServerError, string(analyzer.KindInternal), "internal error", 0)
		return
	}

	message := ae.Message
	switch ae.Kind {
	case analyzer.KindValidation:
		if ae.ImageIndex >= 0 {
			message = fmt.Sprintf("image %d: %s", ae.ImageIndex, ae.Message)
		}
	case analyzer.KindInternal:
		d.log().Error("Analysis failed", "error", err)
		message = "internal error"
	default:
		d.log().Warn("Analysis refused", "kind", ae.Kind, "error", err)
	}

	retry := 0
	if ae.RetryAfter > 0 {
		retry = int(math.Ceil(ae.RetryAfter.Seconds()))
	}
	utils.RespondWithTypedError(w, ae.HTTPStatus(), string(ae.Kind), message, retry)
}

func decodeAnalyzeRequest(r *http.Request) (models.AnalysisRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return decodeMultipart(r)
	}

	var body AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return models.AnalysisRequest{}, err
		}
		return models.AnalysisRequest{}, errors.New("invalid JSON body")
	}
	if len(body.Images) == 0 {
		return models.AnalysisRequest{}, &providers.ImageValidationError{Index: 0, Reason: providers.ErrNoImages.Error()}
	}

	req := models.AnalysisRequest{
		Model:   body.Model,
		Vehicle: body.VehicleInfo,
		Context: body.Context,
		Verify:  body.Verify,
		UseCase: body.UseCase,
		Images:  make([]models.ImageInput, 0, len(body.Images)),
	}
	for i, payload := range body.Images {
		img, err := providers.ParseImagePayload(payload)
		if err != nil {
			return models.AnalysisRequest{}, &providers.ImageValidationError{Index: i, Reason: err.Error()}
		}
		req.Images = append(req.Images, img)
	}
	return req, nil
}

// decodeMultipart reads "images" file parts plus optional model, verify,
// vehicleInfo (JSON) and context (JSON) fields.
func decodeMultipart(r *http.Request) (models.AnalysisRequest, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return models.AnalysisRequest{}, err
		}
		return models.AnalysisRequest{}, errors.New("invalid multipart form")
	}

	req := models.AnalysisRequest{
		Model:   r.FormValue("model"),
		UseCase: r.FormValue("useCase"),
	}
	if v := r.FormValue("verify"); v != "" {
		verify, err := strconv.ParseBool(v)
		if err != nil {
			return models.AnalysisRequest{}, errors.New("verify must be a boolean")
		}
		req.Verify = verify
	}
	if v := strings.TrimSpace(r.FormValue("vehicleInfo")); v != "" {
		req.Vehicle = &models.VehicleProfile{}
		if err := json.Unmarshal([]byte(v), req.Vehicle); err != nil {
			return models.AnalysisRequest{}, errors.New("vehicleInfo must be a JSON object")
		}
	}
	if v := strings.TrimSpace(r.FormValue("context")); v != "" {
		req.Context = &models.TrailContext{}
		if err := json.Unmarshal([]byte(v), req.Context); err != nil {
			return models.AnalysisRequest{}, errors.New("context must be a JSON object")
		}
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		return models.AnalysisRequest{}, &providers.ImageValidationError{Index: 0, Reason: providers.ErrNoImages.Error()}
	}
	if len(files) > providers.MaxImagesPerRequest {
		// fail before reading any part
		return models.AnalysisRequest{}, &providers.ImageValidationError{
			Index:  providers.MaxImagesPerRequest,
			Reason: fmt.Sprintf("too many images: %d supplied, limit is %d", len(files), providers.MaxImagesPerRequest),
		}
	}

	for i, fh := range files {
		if fh.Size > providers.MaxProxiedImageBytes {
			return models.AnalysisRequest{}, &providers.ImageValidationError{
				Index:  i,
				Reason: fmt.Sprintf("image is %d bytes, limit is %d", fh.Size, providers.MaxProxiedImageBytes),
			}
		}
		f, err := fh.Open()
		if err != nil {
			return models.AnalysisRequest{}, &providers.ImageValidationError{Index: i, Reason: "could not read upload"}
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return models.AnalysisRequest{}, &providers.ImageValidationError{Index: i, Reason: "could not read upload"}
		}
		// browsers send application/octet-stream for unknown types; sniff instead
		declared := fh.Header.Get("Content-Type")
		if !strings.HasPrefix(declared, "image/") {
			declared = ""
		}
		req.Images = append(req.Images, models.ImageInput{Data: data, MimeType: declared, Name: fh.Filename})
	}
	return req, nil
}
