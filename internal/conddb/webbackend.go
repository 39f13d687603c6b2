package conddb

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// query builds a URL query string with parameters in insertion order.
type query []string

// queryEscaper keeps list and range separators readable.
var queryEscaper = strings.NewReplacer("%2C", ",", "%3A", ":")

func (q *query) add(key, value string) {
	*q = append(*q, key+"="+queryEscaper.Replace(url.QueryEscape(value)))
}

func (q query) on(base string) string {
	if len(q) == 0 {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + strings.Join(q, "&")
}

func formatTS(ts float64) string {
	return strconv.FormatFloat(ts, 'f', -1, 64)
}

func (t *Table) columnList() string {
	cols := t.selectedColumns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return strings.Join(names, ",")
}

// Load refreshes the rows from the backend of the table type: the
// conditions web service, the unstructured conditions service, the query
// engine when configured, or the database. When nothing affecting the
// selection changed since the last load it returns the current row count
// without a request.
func (t *Table) Load(ctx context.Context) (int, error) {
	if !t.validity.changed {
		return len(t.rows), nil
	}
	switch {
	case t.typ == Conditions:
		return t.loadConditions(ctx)
	case t.typ == UnstructuredConditions:
		return t.loadUConDB(ctx)
	case t.conn.QueryEngineURL != "":
		return t.loadQueryEngine(ctx)
	default:
		return t.LoadFromDB(ctx)
	}
}

// ConditionsURL returns the web service request Load issues for a
// conditions table.
func (t *Table) ConditionsURL() (string, error) {
	if t.conn.WebServiceURL == "" {
		return "", newError(ErrCodeBadConfig, t.QualifiedName(), nil, "no web service URL configured")
	}
	var q query
	q.add("table", t.QualifiedName())
	if v := t.filter.mask.queryValue(); v != "" {
		q.add("type", v)
	}
	if t.filter.hasChanRange {
		q.add("cr", fmt.Sprintf("%d-%d", t.filter.chanMin, t.filter.chanMax))
	}
	if t.sel.where != "" {
		q.add("where", t.sel.where)
	}
	if t.filter.tag != "" {
		q.add("tag", t.filter.tag)
	}
	switch lo, hi := t.filter.minTSVld, t.filter.maxTSVld; {
	case lo == 0 && hi == 0:
	case hi <= lo:
		q.add("t", formatTS(lo))
	default:
		q.add("t0", formatTS(lo))
		q.add("t1", formatTS(hi))
	}
	if t.filter.recordTime > 0 {
		q.add("rtime", formatTS(t.filter.recordTime))
	}
	switch {
	case t.disableCache:
		q.add("cache", "no")
	case t.flushCache:
		q.add("cache", "flush")
	}
	if cols := t.columnList(); cols != "" {
		q.add("columns", cols)
	}
	return q.on(strings.TrimRight(t.conn.WebServiceURL, "/") + "/get"), nil
}

// QueryEngineURL returns the query engine request for a generic or
// hardware table. Raw where clauses and distinct columns have no query
// engine form and are ignored.
func (t *Table) QueryEngineURL() (string, error) {
	if t.conn.QueryEngineURL == "" {
		return "", newError(ErrCodeBadConfig, t.QualifiedName(), nil, "no query engine URL configured")
	}
	if t.sel.where != "" || t.validity.sql != "" {
		t.logger.Warn("query engine ignores where clauses", "table", t.QualifiedName())
	}
	if len(t.sel.distinct) > 0 {
		t.logger.Warn("query engine ignores distinct columns", "table", t.QualifiedName())
	}

	var q query
	q.add("dbname", t.conn.DBName)
	q.add("t", t.QualifiedName())
	if cols := t.columnList(); cols != "" {
		q.add("c", cols)
	}
	for i := range t.validity.start {
		b := &t.validity.start[i]
		q.add("w", b.Column+":ge:"+b.Value.Text())
	}
	for i := range t.validity.end {
		b := &t.validity.end[i]
		q.add("w", b.Column+":le:"+b.Value.Text())
	}
	for _, c := range t.sel.order {
		if t.sel.desc {
			c = "-" + c
		}
		q.add("o", c)
	}
	if t.sel.limit > 0 {
		q.add("l", strconv.Itoa(t.sel.limit))
	}
	if t.sel.offset > 0 {
		q.add("x", strconv.Itoa(t.sel.offset))
	}
	q.add("f", "csv")
	return q.on(t.conn.QueryEngineURL), nil
}

// UConDBURL returns the unstructured conditions request: the schema names
// the folder and the table names the object.
func (t *Table) UConDBURL() (string, error) {
	if t.conn.UConDBURL == "" {
		return "", newError(ErrCodeBadConfig, t.QualifiedName(), nil, "no unstructured conditions URL configured")
	}
	var q query
	q.add("folder", t.schema)
	q.add("object", t.name)
	if t.filter.tag != "" {
		q.add("tag", t.filter.tag)
	}
	if t.filter.minTSVld > 0 {
		q.add("t", formatTS(t.filter.minTSVld))
	}
	return q.on(strings.TrimRight(t.conn.UConDBURL, "/") + "/get"), nil
}

func (t *Table) webError(u string, err error) error {
	t.logger.Error("web request failed", "table", t.QualifiedName(), "url", u, "error", err)
	return newError(ErrCodeWebError, t.QualifiedName(), err, "request failed")
}

// replaceFromCSV swaps the rows for those parsed from a service response.
func (t *Table) replaceFromCSV(body []byte, source string) (int, error) {
	records, err := readCSV(bytes.NewReader(body))
	if err != nil {
		return 0, newError(ErrCodeWebError, t.QualifiedName(), err, "parse %s response", source)
	}
	t.ClearRows()
	n, err := t.fillFromRecords(records, true)
	if err != nil {
		return 0, err
	}
	t.validity.changed = false
	t.metrics.RowsLoaded(t.QualifiedName(), source, n)
	return n, nil
}

func (t *Table) loadConditions(ctx context.Context) (int, error) {
	u, err := t.ConditionsURL()
	if err != nil {
		return 0, err
	}
	t.logger.Debug("load conditions", "table", t.QualifiedName(), "url", u)
	body, err := t.webClient().Get(ctx, u)
	if err != nil {
		return 0, t.webError(u, err)
	}
	return t.replaceFromCSV(body, "web")
}

func (t *Table) loadQueryEngine(ctx context.Context) (int, error) {
	u, err := t.QueryEngineURL()
	if err != nil {
		return 0, err
	}
	t.logger.Debug("load via query engine", "table", t.QualifiedName(), "url", u)
	body, err := t.webClient().Get(ctx, u)
	if err != nil {
		return 0, t.webError(u, err)
	}
	return t.replaceFromCSV(body, "qe")
}

// loadUConDB stores the response in Blob. It yields no rows.
func (t *Table) loadUConDB(ctx context.Context) (int, error) {
	u, err := t.UConDBURL()
	if err != nil {
		return 0, err
	}
	t.logger.Debug("load unstructured conditions", "table", t.QualifiedName(), "url", u)
	body, err := t.webClient().Get(ctx, u)
	if err != nil {
		return 0, t.webError(u, err)
	}
	t.ClearRows()
	t.blob = body
	t.validity.changed = false
	t.metrics.RowsLoaded(t.QualifiedName(), "uconddb", 0)
	return 0, nil
}

func (t *Table) putBase() (string, error) {
	base := t.conn.WebServicePutURL
	if base == "" {
		base = t.conn.WebServiceURL
	}
	if base == "" {
		return "", newError(ErrCodeBadConfig, t.QualifiedName(), nil, "no web service URL configured")
	}
	return strings.TrimRight(base, "/"), nil
}

// PutURL returns the request Write posts conditions rows to.
func (t *Table) PutURL() (string, error) {
	base, err := t.putBase()
	if err != nil {
		return "", err
	}
	var q query
	q.add("table", t.QualifiedName())
	if v := t.filter.mask.queryValue(); v != "" {
		q.add("type", v)
	}
	if t.filter.tag != "" {
		q.add("tag", t.filter.tag)
	}
	return q.on(base + "/put"), nil
}

// TagURL returns the request TagInDB posts.
func (t *Table) TagURL(tag string, override bool) (string, error) {
	base, err := t.putBase()
	if err != nil {
		return "", err
	}
	var q query
	q.add("table", t.QualifiedName())
	q.add("tag", tag)
	if override {
		q.add("override", "yes")
	}
	return q.on(base + "/tag"), nil
}

func (t *Table) writeConditions(ctx context.Context, commit bool) error {
	u, err := t.PutURL()
	if err != nil {
		return err
	}
	var body bytes.Buffer
	if err := t.WriteToCSV(&body); err != nil {
		return err
	}
	if !commit {
		fmt.Fprintf(t.out, "POST %s\n%s", u, body.String())
		return nil
	}
	if _, err := t.webClient().Post(ctx, u, body.Bytes(), t.conn.WebPassword); err != nil {
		return t.webError(u, err)
	}
	for _, r := range t.rows {
		r.InDB = true
		r.ClearModified()
	}
	t.metrics.RowsWritten(t.QualifiedName(), "conditions", len(t.rows))
	return nil
}

// TagInDB snapshots the conditions table under tag. With override an
// existing tag of that name is moved.
func (t *Table) TagInDB(ctx context.Context, tag string, override bool) error {
	if t.typ != Conditions {
		return newError(ErrCodeBadConfig, t.QualifiedName(), nil, "only conditions tables can be tagged")
	}
	if tag == "" {
		return newError(ErrCodeBadConfig, t.QualifiedName(), nil, "tag name is required")
	}
	u, err := t.TagURL(tag, override)
	if err != nil {
		return err
	}
	if _, err := t.webClient().Post(ctx, u, nil, t.conn.WebPassword); err != nil {
		return t.webError(u, err)
	}
	t.logger.Info("tagged", "table", t.QualifiedName(), "tag", tag, "override", override)
	return nil
}
