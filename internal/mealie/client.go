// Package mealie is the REST client for the Mealie recipe manager.
package mealie

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/common"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/pattern"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// PerPage is the page size used for catalog listings.
const PerPage = 100

// Options configures a Client.
type Options struct {
	// HTTPClient replaces the underlying transport, mainly for tests.
	HTTPClient        *http.Client
	BaseURL           string
	APIKey            string
	Retry             common.RetryPolicy
	Timeout           time.Duration
	CatalogTTL        time.Duration
	RequestsPerSecond float64
}

// Client talks to the Mealie API. It is safe for concurrent use.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	cache   *CatalogCache
	policy  common.RetryPolicy
}

// NewClient creates a client for the API rooted at opts.BaseURL.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: Mealie URL is required", common.ErrMissingConfig)
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("%w: Mealie API key is required", common.ErrMissingConfig)
	}

	var httpClient *resty.Client
	if opts.HTTPClient != nil {
		httpClient = resty.NewWithClient(opts.HTTPClient)
	} else {
		httpClient = resty.New()
	}
	httpClient.
		SetBaseURL(baseURL).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", opts.APIKey)).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if opts.Timeout > 0 {
		httpClient.SetTimeout(opts.Timeout)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		burst := max(1, int(opts.RequestsPerSecond))
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	policy := opts.Retry
	if policy.MaxRetries == 0 && policy.BaseDelay == 0 && policy.MaxDelay == 0 {
		onRetry := policy.OnRetry
		policy = common.DefaultRetryPolicy()
		policy.OnRetry = onRetry
	}

	return &Client{
		http:    httpClient,
		limiter: limiter,
		cache:   NewCatalogCache(opts.CatalogTTL),
		policy:  policy,
	}, nil
}

// Cache exposes the catalog cache.
func (c *Client) Cache() *CatalogCache {
	return c.cache
}

// send performs one request without retries and classifies failures.
func (c *Client) send(ctx context.Context, op, method, path string, query map[string]string, body any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter canceled: %w", err)
	}

	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		// transport errors from a canceled request must not be retried
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("Network error", "operation", op, "error", err)
		return nil, common.NewNetworkError(op, err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		apiErr := common.ClassifyStatus(op, resp.StatusCode())
		slog.Error("Request failed",
			"operation", op,
			"status", resp.StatusCode(),
			"kind", apiErr.Kind,
			"category", apiErr.Category)
		return nil, apiErr
	}

	return resp.Body(), nil
}

// call sends a request under policy and decodes the response into out when non-nil.
func (c *Client) call(ctx context.Context, policy common.RetryPolicy, op, method, path string, query map[string]string, body, out any) error {
	return common.WithRetry(ctx, policy, op, func(ctx context.Context) error {
		data, err := c.send(ctx, op, method, path, query, body)
		if err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", op, err)
		}
		return nil
	})
}

type page[T any] struct {
	Next  *string `json:"next"`
	Items []T     `json:"items"`
	Total int     `json:"total"`
}

// fetchAll follows a paginated listing until the server reports no next page.
func fetchAll[T any](ctx context.Context, c *Client, what, path string, perPage int) ([]T, error) {
	var all []T
	for pageNum := 1; ; pageNum++ {
		query := map[string]string{"page": strconv.Itoa(pageNum)}
		if perPage > 0 {
			query["perPage"] = strconv.Itoa(perPage)
		}

		var p page[T]
		op := fmt.Sprintf("Fetch %s page %d", what, pageNum)
		if err := c.call(ctx, c.policy, op, http.MethodGet, path, query, nil, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Items...)
		slog.Debug("Fetched page", "resource", what, "page", pageNum, "items", len(p.Items), "total", p.Total)

		if p.Next == nil || *p.Next == "" || len(p.Items) == 0 {
			break
		}
	}
	slog.Info("Fetched catalog", "resource", what, "count", len(all))
	return all, nil
}

// ListRecipes returns recipe summaries. Summaries may omit ingredients; use GetRecipe for details.
func (c *Client) ListRecipes(ctx context.Context) ([]model.Recipe, error) {
	return fetchAll[model.Recipe](ctx, c, "recipes", "/recipes", 0)
}

// GetRecipe returns one recipe with its ingredients.
func (c *Client) GetRecipe(ctx context.Context, slug string) (model.Recipe, error) {
	var recipe model.Recipe
	op := fmt.Sprintf("Fetch recipe '%s'", slug)
	err := c.call(ctx, c.policy, op, http.MethodGet, "/recipes/"+slug, nil, nil, &recipe)
	return recipe, err
}

// ListUnits returns every unit, from cache when fresh.
func (c *Client) ListUnits(ctx context.Context) ([]model.Unit, error) {
	if units, ok := c.cache.Units(); ok {
		return units, nil
	}
	units, err := fetchAll[model.Unit](ctx, c, "units", "/units", PerPage)
	if err != nil {
		return nil, err
	}
	c.cache.SetUnits(units)
	return units, nil
}

// ListFoods returns every food, from cache when fresh.
func (c *Client) ListFoods(ctx context.Context) ([]model.Food, error) {
	if foods, ok := c.cache.Foods(); ok {
		return foods, nil
	}
	foods, err := fetchAll[model.Food](ctx, c, "foods", "/foods", PerPage)
	if err != nil {
		return nil, err
	}
	c.cache.SetFoods(foods)
	return foods, nil
}

// Parse sends texts to the ingredient parser and normalizes the response.
// The final error after retries is left for the caller to record on the pattern.
func (c *Client) Parse(ctx context.Context, texts []string, method model.ParseMethod) ([]model.ParseResult, error) {
	if method == "" {
		method = model.MethodNLP
	}
	body := map[string]any{"parser": string(method), "ingredients": texts}
	op := fmt.Sprintf("Parse %d ingredients with %s parser", len(texts), method)

	var results []model.ParseResult
	err := common.WithRetry(ctx, c.policy, op, func(ctx context.Context) error {
		data, err := c.send(ctx, op, http.MethodPost, "/parser/ingredients", nil, body)
		if err != nil {
			return err
		}
		results, err = normalizeParsed(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("Parsed ingredients", "count", len(texts), "method", method, "results", len(results))
	return results, nil
}

// CreateUnit creates a unit. A missing abbreviation defaults to the first three characters of the name.
func (c *Client) CreateUnit(ctx context.Context, in model.UnitInput) (model.Unit, error) {
	abbr := in.Abbreviation
	if abbr == "" {
		abbr = pattern.DefaultAbbreviation(in.Name)
	}
	body := map[string]any{
		"name":            in.Name,
		"abbreviation":    abbr,
		"description":     in.Description,
		"fraction":        true,
		"useAbbreviation": false,
	}

	var unit model.Unit
	op := fmt.Sprintf("Create unit '%s'", in.Name)
	if err := c.call(ctx, c.policy, op, http.MethodPost, "/units", nil, body, &unit); err != nil {
		return model.Unit{}, err
	}
	c.cache.Invalidate(model.AxisUnit)
	slog.Info("Created unit", "name", unit.Name, "id", unit.ID)
	return unit, nil
}

// CreateFood creates a food.
func (c *Client) CreateFood(ctx context.Context, in model.FoodInput) (model.Food, error) {
	body := map[string]any{"name": in.Name, "description": in.Description}

	var food model.Food
	op := fmt.Sprintf("Create food '%s'", in.Name)
	if err := c.call(ctx, c.policy, op, http.MethodPost, "/foods", nil, body, &food); err != nil {
		return model.Food{}, err
	}
	c.cache.Invalidate(model.AxisFood)
	slog.Info("Created food", "name", food.Name, "id", food.ID)
	return food, nil
}

// AddUnitAlias adds alias to a unit unless it already has it (ignoring case).
func (c *Client) AddUnitAlias(ctx context.Context, unitID, alias string) (model.Unit, error) {
	var unit model.Unit
	err := c.addAlias(ctx, "units", "unit", unitID, alias, &unit)
	if err == nil {
		c.cache.Invalidate(model.AxisUnit)
	}
	return unit, err
}

// AddFoodAlias adds alias to a food unless it already has it (ignoring case).
func (c *Client) AddFoodAlias(ctx context.Context, foodID, alias string) (model.Food, error) {
	var food model.Food
	err := c.addAlias(ctx, "foods", "food", foodID, alias, &food)
	if err == nil {
		c.cache.Invalidate(model.AxisFood)
	}
	return food, err
}

// addAlias reads the entity as a generic document so fields this client does
// not model survive the PUT.
func (c *Client) addAlias(ctx context.Context, resource, kind, id, alias string, out any) error {
	path := fmt.Sprintf("/%s/%s", resource, id)

	var doc map[string]any
	if err := c.call(ctx, c.policy, fmt.Sprintf("Fetch %s %s", kind, id), http.MethodGet, path, nil, nil, &doc); err != nil {
		return err
	}

	aliases, _ := doc["aliases"].([]any)
	if hasAliasName(aliases, alias) {
		slog.Debug("Alias already exists", "kind", kind, "id", id, "alias", alias)
		return remarshal(doc, out)
	}

	doc["aliases"] = append(aliases, map[string]any{"name": alias})
	op := fmt.Sprintf("Add alias '%s' to %s %s", alias, kind, id)
	if err := c.call(ctx, c.policy, op, http.MethodPut, path, nil, doc, out); err != nil {
		return err
	}
	slog.Info("Added alias", "kind", kind, "id", id, "alias", alias, "name", doc["name"])
	return nil
}

func hasAliasName(aliases []any, alias string) bool {
	want := strings.ToLower(alias)
	for _, a := range aliases {
		var name string
		switch v := a.(type) {
		case map[string]any:
			name, _ = v["name"].(string)
		case string:
			name = v
		}
		if strings.ToLower(name) == want {
			return true
		}
	}
	return false
}

func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// setIngredientRef links one ingredient to a unit or food, keeping the rest of its document.
func (c *Client) setIngredientRef(ctx context.Context, policy common.RetryPolicy, ingredientID, field, entityID string) error {
	path := "/recipes/ingredients/" + ingredientID

	var doc map[string]any
	if err := c.call(ctx, policy, fmt.Sprintf("Fetch ingredient %s", ingredientID), http.MethodGet, path, nil, nil, &doc); err != nil {
		return err
	}
	doc[field] = map[string]any{"id": entityID}

	op := fmt.Sprintf("Update ingredient %s", ingredientID)
	if err := c.call(ctx, policy, op, http.MethodPut, path, nil, doc, nil); err != nil {
		return err
	}
	slog.Debug("Updated ingredient", "ingredient_id", ingredientID, field, entityID)
	return nil
}

// AssignUnit links every ingredient to unitID. Items are processed in order and
// a failure never stops the batch.
func (c *Client) AssignUnit(ctx context.Context, unitID string, ingredientIDs []string, progress func(done, total int)) *common.BatchResult {
	return c.assign(ctx, "unit", unitID, ingredientIDs, progress)
}

// AssignFood links every ingredient to foodID.
func (c *Client) AssignFood(ctx context.Context, foodID string, ingredientIDs []string, progress func(done, total int)) *common.BatchResult {
	return c.assign(ctx, "food", foodID, ingredientIDs, progress)
}

func (c *Client) assign(ctx context.Context, field, entityID string, ingredientIDs []string, progress func(done, total int)) *common.BatchResult {
	result := common.NewBatchResult(len(ingredientIDs))
	slog.Info("Starting batch update", "count", len(ingredientIDs), field+"_id", entityID)

	policy := c.policy
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		result.AddRetries(1)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
	}

	for i, id := range ingredientIDs {
		if err := c.setIngredientRef(ctx, policy, id, field, entityID); err != nil {
			result.AddFailure(id, err)
			slog.Warn("Failed to update ingredient", "ingredient_id", id, "error", err)
		} else {
			result.AddSuccess(id)
		}
		if progress != nil {
			progress(i+1, len(ingredientIDs))
		}
	}

	slog.Info(fmt.Sprintf("Batch update complete: %d successful, %d failed (%.1f%% success rate)",
		len(result.Successful), len(result.Failed), result.SuccessRate()))
	return result
}
