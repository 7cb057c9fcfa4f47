package dispatch

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/onehub/llmgate/internal/access"
	"github.com/onehub/llmgate/internal/auth"
	"github.com/onehub/llmgate/internal/configplane"
)

// listedModel is the provider+model pair, post access-control filtering,
// that a listing endpoint renders in its dialect's shape.
type listedModel struct {
	name string
}

// listModels resolves the caller's policy and returns every enabled model
// under an enabled provider that the policy allows.
func (d *Deps) listModels(c *gin.Context, dialect clientDialect) ([]listedModel, *apiError) {
	ctx := c.Request.Context()
	credential := extractCredential(c, dialect)
	if credential == "" {
		return nil, unauthorizedError("missing credential")
	}
	identity, err := auth.Authenticate(ctx, d.Cache, d.DeploymentSecret, credential)
	if err != nil {
		return nil, unauthorizedError(err.Error())
	}
	policy, apiErr := d.loadPolicy(ctx, identity.Key.AccessControlPolicy)
	if apiErr != nil {
		return nil, apiErr
	}

	providers, err := d.Store.ListAllProviders(ctx)
	if err != nil {
		return nil, misconfigurationError("list providers: " + err.Error())
	}
	providerKeyByID := make(map[int64]string, len(providers))
	for _, p := range providers {
		if p.IsEnabled {
			providerKeyByID[p.ID] = p.ProviderKey
		}
	}

	models, err := d.Store.ListAllModels(ctx)
	if err != nil {
		return nil, misconfigurationError("list models: " + err.Error())
	}

	// Models are listed under the composite name clients actually resolve
	// with; aliases keep their bare name.
	out := make([]listedModel, 0, len(models))
	for _, m := range models {
		pk, providerEnabled := providerKeyByID[m.ProviderID]
		if !m.IsEnabled || !providerEnabled {
			continue
		}
		if !access.Evaluate(policy, m.ProviderID, m.ID).Allowed {
			continue
		}
		out = append(out, listedModel{name: pk + "/" + m.ModelName})
	}

	aliases, err := d.Store.ListAllAliases(ctx)
	if err != nil {
		return nil, misconfigurationError("list aliases: " + err.Error())
	}
	modelByID := make(map[int64]configplane.ModelRow, len(models))
	for _, m := range models {
		modelByID[m.ID] = m
	}
	for _, a := range aliases {
		if !a.IsEnabled {
			continue
		}
		target, ok := modelByID[a.TargetModelID]
		if _, providerEnabled := providerKeyByID[target.ProviderID]; !ok || !target.IsEnabled || !providerEnabled {
			continue
		}
		if !access.Evaluate(policy, target.ProviderID, target.ID).Allowed {
			continue
		}
		out = append(out, listedModel{name: a.AliasName})
	}
	return out, nil
}

// openAIModelList and openAIModelEntry mirror OpenAI's GET /v1/models
// response shape.
type openAIModelList struct {
	Object string             `json:"object"`
	Data   []openAIModelEntry `json:"data"`
}

type openAIModelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

func (d *Deps) handleOpenAIModelList(c *gin.Context) {
	models, apiErr := d.listModels(c, dialectOpenAI)
	if apiErr != nil {
		writeAPIError(c, apiErr)
		return
	}
	now := time.Now().Unix()
	resp := openAIModelList{Object: "list", Data: make([]openAIModelEntry, 0, len(models))}
	for _, m := range models {
		resp.Data = append(resp.Data, openAIModelEntry{ID: m.name, Object: "model", Created: now, OwnedBy: "onehub"})
	}
	c.JSON(http.StatusOK, resp)
}

type anthropicModelList struct {
	Data    []anthropicModelEntry `json:"data"`
	HasMore bool                  `json:"has_more"`
}

type anthropicModelEntry struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
}

func (d *Deps) handleAnthropicModelList(c *gin.Context) {
	models, apiErr := d.listModels(c, dialectAnthropic)
	if apiErr != nil {
		writeAPIError(c, apiErr)
		return
	}
	now := time.Now().UTC().Format(time.RFC3339)
	resp := anthropicModelList{Data: make([]anthropicModelEntry, 0, len(models))}
	for _, m := range models {
		resp.Data = append(resp.Data, anthropicModelEntry{ID: m.name, Type: "model", DisplayName: m.name, CreatedAt: now})
	}
	c.JSON(http.StatusOK, resp)
}

type geminiModelList struct {
	Models []geminiModelEntry `json:"models"`
}

type geminiModelEntry struct {
	Name                       string   `json:"name"`
	BaseModelID                string   `json:"baseModelId"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
}

func (d *Deps) handleGeminiModelList(c *gin.Context) {
	models, apiErr := d.listModels(c, dialectGemini)
	if apiErr != nil {
		writeAPIError(c, apiErr)
		return
	}
	resp := geminiModelList{Models: make([]geminiModelEntry, 0, len(models))}
	for _, m := range models {
		resp.Models = append(resp.Models, geminiModelEntry{
			Name:                       "models/" + m.name,
			BaseModelID:                m.name,
			SupportedGenerationMethods: []string{"generateContent", "streamGenerateContent"},
		})
	}
	c.JSON(http.StatusOK, resp)
}
