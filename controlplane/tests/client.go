package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"

	"dbplane/controlplane/auth"
	"dbplane/controlplane/dbschema"

	"github.com/go-chi/chi/v5"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader

	expectStatus int
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:          api,
		method:       method,
		endpoint:     endpoint,
		expectStatus: http.StatusOK,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

// ExpectStatus makes Do treat the given status as success instead of 200.
func (r *httpTestRequest) ExpectStatus(code int) *httpTestRequest {
	r.expectStatus = code
	return r
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	for k, v := range r.headers {
		req.Header.Add(k, v)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != r.expectStatus {
		return fmt.Errorf("%v request to endpoint %v returned status %d, content '%v'", r.method, r.endpoint, res.StatusCode, w.Body.String())
	}

	if result != nil && r.expectStatus == http.StatusOK {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

type client struct {
	api       chi.Router
	tenantId  string
	authToken string
}

func (c *client) request(method, endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, method, endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	if c.tenantId != "" {
		return r.Header(auth.TenantIdHeader, c.tenantId)
	}
	return r
}

func (c *client) Get(endpoint string) *httpTestRequest {
	return c.request("GET", endpoint)
}

func (c *client) Post(endpoint string) *httpTestRequest {
	return c.request("POST", endpoint)
}

func (c *client) Put(endpoint string) *httpTestRequest {
	return c.request("PUT", endpoint)
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	return c.request("DELETE", endpoint)
}

func (c *client) createTenant(name, kind string, schemaDef *dbschema.SchemaDefinition) (string, error) {
	body := map[string]interface{}{"name": name}
	if kind != "" {
		body["databaseKind"] = kind
	}
	if schemaDef != nil {
		body["schemaDefinition"] = schemaDef
	}

	var res map[string]string
	err := c.Post("/tenants").Json(body).Do(&res)
	return res["tenantId"], err
}

type tenantInfo struct {
	Id           string `json:"id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	DatabaseKind string `json:"databaseKind"`
}

func (c *client) listTenants() ([]tenantInfo, error) {
	var res []tenantInfo
	err := c.Get("/tenants").Do(&res)
	return res, err
}

func (c *client) disableTenant(tenantId string) error {
	return c.Delete(fmt.Sprintf("/tenants/%v", tenantId)).Do(nil)
}

type tenantSchema struct {
	Version          int                        `json:"version"`
	SchemaDefinition *dbschema.SchemaDefinition `json:"schemaDefinition"`
}

func (c *client) getSchema(tenantId string) (tenantSchema, error) {
	var res tenantSchema
	err := c.Get(fmt.Sprintf("/tenants/%v/schema", tenantId)).Do(&res)
	return res, err
}

func (c *client) updateSchema(tenantId string, schemaDef *dbschema.SchemaDefinition) error {
	body := map[string]interface{}{"schemaDefinition": schemaDef}
	return c.Put(fmt.Sprintf("/tenants/%v/schema", tenantId)).Json(body).Do(nil)
}

func (c *client) issueToken(tenantId string) (string, error) {
	var res map[string]string
	err := c.Post("/token").Json(map[string]string{"tenantId": tenantId}).Do(&res)
	return res["token"], err
}

func (c *client) listTables() ([]string, error) {
	var res struct {
		Tables []string `json:"tables"`
	}
	err := c.Get("/data").Do(&res)
	return res.Tables, err
}

func (c *client) queryTable(table, where, orderBy string) ([]map[string]interface{}, error) {
	endpoint := fmt.Sprintf("/data/%v", table)
	params := url.Values{}
	if where != "" {
		params.Set("where", where)
	}
	if orderBy != "" {
		params.Set("orderBy", orderBy)
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var res struct {
		Records []map[string]interface{} `json:"records"`
	}
	err := c.Get(endpoint).Do(&res)
	return res.Records, err
}

func (c *client) insertRecord(table string, record map[string]interface{}) error {
	return c.Post(fmt.Sprintf("/data/%v", table)).Json(record).Do(nil)
}

func (c *client) updateRecords(table string, record map[string]interface{}, where string) (int64, error) {
	endpoint := fmt.Sprintf("/data/%v?where=%v", table, url.QueryEscape(where))

	var res struct {
		Updated int64 `json:"updated"`
	}
	err := c.Put(endpoint).Json(record).Do(&res)
	return res.Updated, err
}

func (c *client) deleteRecords(table, where string) (int64, error) {
	endpoint := fmt.Sprintf("/data/%v?where=%v", table, url.QueryEscape(where))

	var res struct {
		Deleted int64 `json:"deleted"`
	}
	err := c.Delete(endpoint).Do(&res)
	return res.Deleted, err
}

type columnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primaryKey"`
}

func (c *client) tableSchema(table string) ([]columnInfo, error) {
	var res struct {
		Columns []columnInfo `json:"columns"`
	}
	err := c.Get(fmt.Sprintf("/data/%v/schema", table)).Do(&res)
	return res.Columns, err
}
