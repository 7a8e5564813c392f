package obj

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/mb0/feather/dom"
	"github.com/mb0/feather/dom/domtest"
	"github.com/mb0/feather/log"
	"github.com/mb0/feather/patch"
	"github.com/mb0/feather/prop"
	"github.com/mb0/feather/src"
	"github.com/pkg/errors"
)

type fakeSource struct {
	reqs []*src.Request
	res  func(*src.Request) (string, error)
}

func (f *fakeSource) Request(_ context.Context, req *src.Request) (json.RawMessage, error) {
	f.reqs = append(f.reqs, req)
	if f.res == nil {
		return nil, nil
	}
	raw, err := f.res(req)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

const adaRaw = `{"id":"c1","created":"2024-01-01T00:00:00Z","updated":"2024-01-01T00:00:00Z",
"firstName":"Ada","lastName":"Lovelace","fullName":null,"email":null,"birthDate":null}`

func contactReg(t *testing.T, res func(*src.Request) (string, error)) (*Registry, *fakeSource) {
	t.Helper()
	fix, err := domtest.ContactFixture()
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	s := &fakeSource{res: res}
	return NewRegistry(fix.Catalog, s, log.NewTesting(t)), s
}

func fetchAda(t *testing.T, r *Registry) *Model {
	t.Helper()
	m, err := r.Get(context.Background(), "Contact", "c1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	return m
}

func adaSource(req *src.Request) (string, error) {
	if req.Method == src.GET && req.Path == "/data/contact/c1" {
		return adaRaw, nil
	}
	return "", nil
}

func parse(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var res map[string]interface{}
	err := json.Unmarshal([]byte(raw), &res)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return res
}

func TestRequired(t *testing.T) {
	r, _ := contactReg(t, nil)
	m, err := r.New("Contact", nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !m.State().Is("/Ready/New") {
		t.Errorf("want new got %v", m.State().Current())
	}
	var handled error
	m.OnError(func(err error) { handled = err })
	if m.IsValid() {
		t.Fatalf("want invalid contact")
	}
	var ve *ValidationError
	if !errors.As(m.LastError(), &ve) || ve.Key != "firstName" || handled != m.LastError() {
		t.Fatalf("want validation error for firstName got %v", m.LastError())
	}
	if got := m.LastError().Error(); got != `"firstName" is required` {
		t.Errorf("unexpected message %s", got)
	}
	m.Data("firstName").Set("Ada")
	if !m.IsValid() {
		t.Errorf("want valid contact got %v", m.LastError())
	}
}

func TestFetch(t *testing.T) {
	r, s := contactReg(t, adaSource)
	m := fetchAda(t, r)
	if !m.State().Is("/Ready/Fetched/Clean") {
		t.Errorf("want clean got %v", m.State().Current())
	}
	if len(s.reqs) != 1 || s.reqs[0].String() != "GET /data/contact/c1" {
		t.Errorf("unexpected requests %v", s.reqs)
	}
	if want := parse(t, adaRaw); !reflect.DeepEqual(m.LastFetched(), want) {
		t.Errorf("want last fetched %v got %v", want, m.LastFetched())
	}
	if got := m.Data("lastName").Get(); got != "Lovelace" {
		t.Errorf("want Lovelace got %v", got)
	}
	if m.CanUndo() || !m.CanDelete() {
		t.Errorf("clean model can delete but not undo")
	}
}

func TestDirtyUndo(t *testing.T) {
	r, _ := contactReg(t, adaSource)
	m := fetchAda(t, r)
	m.Data("lastName").Set("Byron")
	if !m.State().Is("/Ready/Fetched/Dirty") || !m.CanUndo() || m.CanDelete() {
		t.Fatalf("want dirty got %v", m.State().Current())
	}
	m.Undo()
	if !m.State().Is("/Ready/Fetched/Clean") {
		t.Errorf("want clean got %v", m.State().Current())
	}
	if got := m.Data("lastName").Get(); got != "Lovelace" {
		t.Errorf("want Lovelace got %v", got)
	}
}

func TestSaveClean(t *testing.T) {
	r, s := contactReg(t, adaSource)
	m := fetchAda(t, r)
	res, err := m.Save(context.Background()).Wait(context.Background())
	if err != nil || res != m {
		t.Errorf("want model got %v %v", res, err)
	}
	if len(s.reqs) != 1 {
		t.Errorf("save in clean must not request got %v", s.reqs)
	}
	if !m.State().Is("/Ready/Fetched/Clean") {
		t.Errorf("want clean got %v", m.State().Current())
	}
}

func TestPatch(t *testing.T) {
	var sent string
	r, s := contactReg(t, func(req *src.Request) (string, error) {
		if req.Method == src.PATCH {
			b, _ := json.Marshal(req.Data)
			sent = string(b)
			return `[{"op":"replace","path":"/updated","value":"2024-02-01T00:00:00Z"}]`, nil
		}
		return adaSource(req)
	})
	m := fetchAda(t, r)
	m.Data("lastName").Set("Byron")
	_, err := m.Save(context.Background()).Wait(context.Background())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(s.reqs) != 2 || s.reqs[1].String() != "PATCH /data/contact/c1" {
		t.Fatalf("unexpected requests %v", s.reqs)
	}
	if want := `[{"op":"replace","path":"/lastName","value":"Byron"}]`; sent != want {
		t.Errorf("want patch %s got %s", want, sent)
	}
	if !m.State().Is("/Ready/Fetched/Clean") {
		t.Errorf("want clean got %v", m.State().Current())
	}
	lf := m.LastFetched()
	if lf["lastName"] != "Byron" || lf["updated"] != "2024-02-01T00:00:00Z" {
		t.Errorf("unexpected last fetched %v", lf)
	}
	if got := m.Data("updated").Get(); got != "2024-02-01T00:00:00Z" {
		t.Errorf("want server update got %v", got)
	}
}

func TestPost(t *testing.T) {
	var doc map[string]interface{}
	r, s := contactReg(t, func(req *src.Request) (string, error) {
		doc, _ = req.Data.(map[string]interface{})
		return `[{"op":"replace","path":"/created","value":"2024-03-01T00:00:00Z"}]`, nil
	})
	m, _ := r.New("Contact", map[string]interface{}{"firstName": "Grace"})
	id := m.ID()
	if id == "" {
		t.Fatalf("want generated id")
	}
	_, err := m.Save(context.Background()).Wait(context.Background())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(s.reqs) != 1 || s.reqs[0].String() != "POST /data/contacts" {
		t.Fatalf("unexpected requests %v", s.reqs)
	}
	if doc["firstName"] != "Grace" || doc["id"] != id {
		t.Errorf("unexpected document %v", doc)
	}
	if !m.State().Is("/Ready/Fetched/Clean") {
		t.Errorf("want clean got %v", m.State().Current())
	}
	if got := m.Data("created").Get(); got != "2024-03-01T00:00:00Z" {
		t.Errorf("want created got %v", got)
	}
	m.Data("email").Set("grace@example.com")
	m.Save(context.Background()).Wait(context.Background())
	if len(s.reqs) != 2 || s.reqs[1].Method != src.PATCH {
		t.Errorf("second save must patch got %v", s.reqs)
	}
}

func TestBusy(t *testing.T) {
	release := make(chan struct{})
	r, s := contactReg(t, func(req *src.Request) (string, error) {
		if req.Method == src.PATCH {
			<-release
			return `[]`, nil
		}
		return adaSource(req)
	})
	ctx := context.Background()
	m := fetchAda(t, r)
	m.Data("lastName").Set("Byron")
	task := m.Save(ctx)
	if !task.Pending() || task.Value() != nil || m.Pending() != task {
		t.Fatalf("want pending save task")
	}
	if !m.State().Is("/Busy/Saving/Patching") {
		t.Fatalf("want patching got %v", m.State().Current())
	}
	if got := m.Fetch(ctx); got.Pending() || got.Value() != m {
		t.Errorf("fetch while busy must be ignored got %v", got.Value())
	}
	if got := m.Delete(ctx, true); got.Value() != false {
		t.Errorf("delete while busy must be ignored got %v", got.Value())
	}
	if got := m.Save(ctx); got.Pending() || got.Value() != m {
		t.Errorf("save while busy must be ignored got %v", got.Value())
	}
	if !m.State().Is("/Busy/Saving/Patching") {
		t.Fatalf("want patching got %v", m.State().Current())
	}
	close(release)
	res, err := task.Wait(ctx)
	if err != nil || res != m {
		t.Fatalf("want saved model got %v %v", res, err)
	}
	if !m.State().Is("/Ready/Fetched/Clean") || m.Pending() != nil {
		t.Errorf("want clean got %v", m.State().Current())
	}
	if len(s.reqs) != 2 || s.reqs[1].Method != src.PATCH {
		t.Errorf("ignored operations must not request got %v", s.reqs)
	}
	if _, err := task.Wait(ctx); err != nil {
		t.Errorf("settled task must keep its result got %v", err)
	}
}

func TestSettle(t *testing.T) {
	release := make(chan struct{})
	r, _ := contactReg(t, func(req *src.Request) (string, error) {
		<-release
		return adaSource(req)
	})
	m, _ := r.New("Contact", map[string]interface{}{"id": "c1"})
	if err := m.Settle(context.Background()); err != nil {
		t.Errorf("settle without request got %v", err)
	}
	task := m.Fetch(context.Background())
	if !m.State().Is("/Busy/Fetching") {
		t.Fatalf("want fetching got %v", m.State().Current())
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Settle(ctx); err != context.Canceled || !m.State().Is("/Busy/Fetching") {
		t.Errorf("want canceled wait got %v %v", err, m.State().Current())
	}
	close(release)
	if err := m.Settle(context.Background()); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !m.State().Is("/Ready/Fetched/Clean") || task.Value() != m || m.Data("lastName").Get() != "Lovelace" {
		t.Errorf("want fetched model got %v", m.State().Current())
	}
}

func TestUndoClean(t *testing.T) {
	r, _ := contactReg(t, adaSource)
	m := fetchAda(t, r)
	before, _ := json.Marshal(m)
	m.Undo()
	after, _ := json.Marshal(m)
	if !m.State().Is("/Ready/Fetched/Clean") || string(after) != string(before) {
		t.Errorf("undo in clean must be ignored got %v %s", m.State().Current(), after)
	}
	if want := parse(t, adaRaw); !reflect.DeepEqual(m.LastFetched(), want) {
		t.Errorf("want last fetched %v got %v", want, m.LastFetched())
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		fix     func() (*domtest.Fixture, error)
		feather string
		raw     string
	}{
		{domtest.ContactFixture, "Contact", `{"id":"c1","created":"2024-01-01T00:00:00Z",
			"updated":"2024-02-03T10:30:00Z","firstName":"Ada","lastName":"Lovelace",
			"fullName":"Ada Lovelace","email":"ada@example.com","birthDate":"1815-12-10"}`},
		{domtest.ContactFixture, "CurrencyUnit", `{"id":"u1","created":null,"updated":null,
			"code":"EUR","description":"Euro","minorUnit":2}`},
		{domtest.OrderFixture, "Order", orderRaw},
		{domtest.OrderFixture, "OrderLine", `{"id":"l1","item":"pen","quantity":2,
			"price":{"amount":5.5,"currency":"EUR"}}`},
	}
	for _, test := range tests {
		fix, err := test.fix()
		if err != nil {
			t.Fatalf("fixture: %v", err)
		}
		r := NewRegistry(fix.Catalog, nil, log.NewTesting(t))
		m, err := r.New(test.feather, nil)
		if err != nil {
			t.Fatalf("new %s: %v", test.feather, err)
		}
		if err := m.loaded(parse(t, test.raw)); err != nil {
			t.Fatalf("load %s: %v", test.feather, err)
		}
		if ops, err := patch.Diff(m.LastFetched(), m.JSON()); err != nil || len(ops) != 0 {
			t.Errorf("%s want no changes after load got %v %v", test.feather, ops, err)
		}
		before, _ := json.Marshal(m)
		if err := m.Set(m.JSON(), true, false); err != nil {
			t.Errorf("%s set: %v", test.feather, err)
			continue
		}
		after, _ := json.Marshal(m)
		if string(after) != string(before) {
			t.Errorf("%s want %s got %s", test.feather, before, after)
		}
		if !m.State().Is("/Ready/Fetched/Clean") {
			t.Errorf("%s silent set must not change state got %v", test.feather, m.State().Current())
		}
	}
}

func TestInvalidSave(t *testing.T) {
	r, s := contactReg(t, nil)
	m, _ := r.New("Contact", nil)
	task := m.Save(context.Background())
	var ve *ValidationError
	if !errors.As(task.Err(), &ve) {
		t.Errorf("want validation error got %v", task.Err())
	}
	if len(s.reqs) != 0 || !m.State().Is("/Ready/New") {
		t.Errorf("invalid save must not change state got %v %v", s.reqs, m.State().Current())
	}
}

func TestConflict(t *testing.T) {
	r, _ := contactReg(t, func(req *src.Request) (string, error) {
		if req.Method == src.PATCH {
			return "", errors.Wrap(src.ErrConflict, "test failed")
		}
		return adaSource(req)
	})
	m := fetchAda(t, r)
	m.Data("lastName").Set("Byron")
	_, err := m.Save(context.Background()).Wait(context.Background())
	if !errors.Is(err, src.ErrConflict) || !errors.Is(m.LastError(), src.ErrConflict) {
		t.Fatalf("want conflict got %v", err)
	}
	if !m.State().Is("/Ready/Fetched/Dirty") {
		t.Errorf("want dirty got %v", m.State().Current())
	}
	if got := m.Data("lastName").Get(); got != "Byron" {
		t.Errorf("edits must be kept got %v", got)
	}
}

func TestTransportError(t *testing.T) {
	r, _ := contactReg(t, func(req *src.Request) (string, error) {
		return "", errors.New("connection refused")
	})
	m, _ := r.New("Contact", map[string]interface{}{"id": "c1", "firstName": "Ada"})
	_, err := m.Fetch(context.Background()).Wait(context.Background())
	var te *src.TransportError
	if !errors.As(err, &te) || te.Req.Path != "/data/contact/c1" {
		t.Fatalf("want transport error got %v", err)
	}
	if !m.State().Is("/Ready/New") {
		t.Errorf("want new got %v", m.State().Current())
	}
	if got := m.Data("firstName").Get(); got != "Ada" {
		t.Errorf("values must be kept got %v", got)
	}
}

func TestDelete(t *testing.T) {
	r, s := contactReg(t, adaSource)
	m := fetchAda(t, r)
	task := m.Delete(context.Background(), false)
	if task.Value() != false || !m.State().Is("/Delete") || !m.CanUndo() {
		t.Fatalf("want delete got %v %v", task.Value(), m.State().Current())
	}
	if !m.Data("firstName").IsReadOnly() {
		t.Errorf("want frozen properties")
	}
	m.Data("firstName").Set("Eve")
	if got := m.Data("firstName").Get(); got != "Ada" {
		t.Errorf("frozen properties must revert writes got %v", got)
	}
	m.Undo()
	if !m.State().Is("/Ready/Fetched/Clean") || m.Data("firstName").IsReadOnly() {
		t.Fatalf("want thawed clean model got %v", m.State().Current())
	}
	if !m.Data("created").IsReadOnly() {
		t.Errorf("declared read only flag must be restored")
	}
	res, err := m.Delete(context.Background(), true).Wait(context.Background())
	if err != nil || res != true {
		t.Fatalf("want deleted got %v %v", res, err)
	}
	if !m.State().Is("/Deleted") || len(s.reqs) != 2 || s.reqs[1].String() != "DELETE /data/contact/c1" {
		t.Fatalf("unexpected state %v requests %v", m.State().Current(), s.reqs)
	}
	m.Clear()
	if !m.State().Is("/Ready/New") || m.Data("firstName").Get() != nil {
		t.Errorf("want cleared new model got %v", m.State().Current())
	}
	m.Data("firstName").Set("Eve")
	if got := m.Data("firstName").Get(); got != "Eve" {
		t.Errorf("cleared model must be writable got %v", got)
	}
}

func TestDeleteNew(t *testing.T) {
	r, s := contactReg(t, nil)
	m, _ := r.New("Contact", map[string]interface{}{"firstName": "Ada"})
	m.Delete(context.Background(), false)
	m.Undo()
	if !m.State().Is("/Ready/New") || m.Data("firstName").Get() != "Ada" {
		t.Fatalf("undo must keep values got %v", m.State().Current())
	}
	res, err := m.Delete(context.Background(), true).Wait(context.Background())
	if err != nil || res != true || !m.State().Is("/Deleted") || len(s.reqs) != 0 {
		t.Errorf("want deleted without request got %v %v %v", res, err, s.reqs)
	}
}

func TestClear(t *testing.T) {
	r, _ := contactReg(t, adaSource)
	m := fetchAda(t, r)
	m.Clear()
	if !m.State().Is("/Ready/New") || m.LastFetched() != nil {
		t.Fatalf("want new got %v", m.State().Current())
	}
	if id := m.ID(); id == "" || id == "c1" {
		t.Errorf("want new id got %q", id)
	}
	if m.Data("lastName").Get() != nil {
		t.Errorf("want default values")
	}
}

func TestContactCtor(t *testing.T) {
	r, _ := contactReg(t, adaSource)
	r.Register("Contact", func(r *Registry, f *dom.Feather, data map[string]interface{}) (*Model, error) {
		m, err := NewModel(r, f, data)
		if err != nil {
			return nil, err
		}
		full := m.Data("fullName")
		update := func(p *prop.Prop) {
			first, _ := m.Data("firstName").Get().(string)
			last, _ := m.Data("lastName").Get().(string)
			switch p.Key {
			case "firstName":
				first, _ = p.NewValue().(string)
			case "lastName":
				last, _ = p.NewValue().(string)
			}
			full.Set(strings.TrimSpace(first + " " + last))
		}
		m.OnChange("firstName", func(p *prop.Prop) {
			if s, ok := p.NewValue().(string); ok {
				p.SetNewValue(strings.TrimSpace(s))
			}
			update(p)
		})
		m.OnChange("lastName", update)
		return m, nil
	})
	m := fetchAda(t, r)
	m.Data("firstName").Set("  Augusta ")
	if got := m.Data("firstName").Get(); got != "Augusta" {
		t.Errorf("want trimmed name got %q", got)
	}
	if got := m.Data("fullName").Get(); got != "Augusta Lovelace" {
		t.Errorf("want full name got %q", got)
	}
	if !m.State().Is("/Ready/Fetched/Dirty") {
		t.Errorf("want dirty got %v", m.State().Current())
	}
}

func TestRule(t *testing.T) {
	r, _ := contactReg(t, nil)
	m, err := r.New("CurrencyUnit", map[string]interface{}{"code": "EURO1"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if m.IsValid() {
		t.Fatalf("want invalid currency unit")
	}
	if got := m.LastError().Error(); got != "code may not be more than 4 characters" {
		t.Errorf("unexpected message %s", got)
	}
	m.Data("code").Set("EUR")
	if !m.IsValid() {
		t.Errorf("want valid got %v", m.LastError())
	}
	if got := m.Data("minorUnit").Get(); got != int64(2) {
		t.Errorf("want default minor unit got %#v", got)
	}
}

func TestSetErrors(t *testing.T) {
	r, _ := contactReg(t, nil)
	if _, err := r.New("Contact", map[string]interface{}{"nickName": "x"}); err == nil {
		t.Errorf("want unknown property error")
	}
	if _, err := r.New("Nope", nil); err == nil {
		t.Errorf("want unknown feather error")
	}
	m, _ := r.New("Contact", nil)
	if _, err := m.Prop("nickName"); err == nil {
		t.Errorf("want unknown property error")
	}
	if err := m.Set(map[string]interface{}{"birthDate": "tomorrow"}, false, false); err == nil {
		t.Errorf("want conversion error")
	}
	if err := m.OnChange("nickName", func(*prop.Prop) {}); err == nil {
		t.Errorf("want unknown property error")
	}
}

func TestList(t *testing.T) {
	r, s := contactReg(t, func(req *src.Request) (string, error) {
		return `[` + adaRaw + `,{"id":"c2","firstName":"Alan","lastName":"Turing"}]`, nil
	})
	list, err := r.List(context.Background(), "Contact")
	if err != nil || len(list) != 2 {
		t.Fatalf("want two contacts got %v %v", list, err)
	}
	if s.reqs[0].String() != "GET /data/contacts" {
		t.Errorf("unexpected request %v", s.reqs[0])
	}
	for _, m := range list {
		if !m.State().Is("/Ready/Fetched/Clean") {
			t.Errorf("want clean got %v", m.State().Current())
		}
	}
	if list[1].ID() != "c2" {
		t.Errorf("want c2 got %s", list[1].ID())
	}
}

func TestTask(t *testing.T) {
	task := newTask(nil)
	if task.Value() != nil || task.Err() != nil {
		t.Errorf("pending task has no result")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := task.Wait(ctx); err != context.Canceled {
		t.Errorf("want canceled got %v", err)
	}
	task.reject(src.ErrNotFound)
	task.resolve(1)
	if _, err := task.Wait(context.Background()); err != src.ErrNotFound {
		t.Errorf("first settlement wins got %v", err)
	}
}
