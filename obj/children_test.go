package obj

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mb0/feather/dom/domtest"
	"github.com/mb0/feather/log"
	"github.com/mb0/feather/patch"
	"github.com/mb0/feather/src"
)

const orderRaw = `{"id":"o1","number":1001,"orderDate":"2024-03-01","total":30,
"customer":{"id":"c1","firstName":"Ada","lastName":"Lovelace"},
"lines":[
	{"id":"l1","item":"pen","quantity":2,"price":{"amount":5,"currency":"EUR"}},
	{"id":"l2","item":"ink","quantity":1,"price":{"amount":20,"currency":"EUR"}}
]}`

func orderReg(t *testing.T, res func(*src.Request) (string, error)) (*Registry, *fakeSource) {
	t.Helper()
	fix, err := domtest.OrderFixture()
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	s := &fakeSource{res: func(req *src.Request) (string, error) {
		if req.Method == src.GET {
			return orderRaw, nil
		}
		if res != nil {
			return res(req)
		}
		return "", nil
	}}
	return NewRegistry(fix.Catalog, s, log.NewTesting(t)), s
}

func fetchOrder(t *testing.T, r *Registry) (*Model, *Children) {
	t.Helper()
	m, err := r.Get(context.Background(), "Order", "o1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	lines, err := m.Children("lines")
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	return m, lines
}

func linesJSON(t *testing.T, m *Model) string {
	t.Helper()
	b, err := json.Marshal(m.Data("lines"))
	if err != nil {
		t.Fatalf("marshal lines: %v", err)
	}
	return string(b)
}

func TestFetchRelations(t *testing.T) {
	r, _ := orderReg(t, nil)
	m, lines := fetchOrder(t, r)
	if !m.State().Is("/Ready/Fetched/Clean") {
		t.Fatalf("want clean got %v", m.State().Current())
	}
	cust, ok := m.Data("customer").Get().(*Model)
	if !ok || cust.Data("lastName").Get() != "Lovelace" {
		t.Fatalf("want customer model got %v", m.Data("customer").Get())
	}
	if cust.Data("phone") != nil {
		t.Errorf("customer must be restricted to the declared properties")
	}
	if lines.Len() != 2 || lines.At(1).ID() != "l2" {
		t.Fatalf("want two lines got %d", lines.Len())
	}
	for _, c := range append(lines.Items(), cust) {
		if !c.State().Is("/Ready/Fetched/Clean") {
			t.Errorf("nested %s want clean got %v", c, c.State().Current())
		}
	}
	if got := lines.At(0).Data("quantity").Get(); got != int64(2) {
		t.Errorf("want quantity 2 got %#v", got)
	}
	if lines.At(0).Data("order") != nil {
		t.Errorf("child of relations have no cell")
	}
}

func TestChildDirty(t *testing.T) {
	r, s := orderReg(t, nil)
	m, lines := fetchOrder(t, r)
	line := lines.At(0)
	line.Data("quantity").Set(3)
	if !line.State().Is("/Ready/Fetched/Dirty") || !m.State().Is("/Ready/Fetched/Dirty") {
		t.Fatalf("want dirty line and order got %v %v", line.State().Current(), m.State().Current())
	}
	line.Save(context.Background())
	if len(s.reqs) != 1 {
		t.Errorf("children are saved with their parent got %v", s.reqs)
	}
	m.Undo()
	lines, _ = m.Children("lines")
	if got := lines.At(0).Data("quantity").Get(); got != int64(2) {
		t.Errorf("want reverted quantity got %v", got)
	}
	if !lines.At(0).State().Is("/Ready/Fetched/Clean") {
		t.Errorf("want clean line got %v", lines.At(0).State().Current())
	}
}

func TestRemoveFetched(t *testing.T) {
	var sent string
	r, _ := orderReg(t, func(req *src.Request) (string, error) {
		b, _ := json.Marshal(req.Data)
		sent = string(b)
		return "null", nil
	})
	m, lines := fetchOrder(t, r)
	added, err := lines.Add(map[string]interface{}{"id": "l3", "item": "pad"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !m.State().Is("/Ready/Fetched/Dirty") {
		t.Fatalf("want dirty got %v", m.State().Current())
	}
	if err := lines.Remove(added); err != nil {
		t.Fatalf("remove added: %v", err)
	}
	if err := lines.Remove("l1"); err != nil {
		t.Fatalf("remove l1: %v", err)
	}
	if lines.Len() != 1 {
		t.Errorf("want one line got %d", lines.Len())
	}
	want := `[null,{"id":"l2","item":"ink","price":{"amount":20,"currency":"EUR"},"quantity":1}]`
	if got := linesJSON(t, m); got != want {
		t.Errorf("want lines %s got %s", want, got)
	}
	_, err = m.Save(context.Background()).Wait(context.Background())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if want := `[{"op":"remove","path":"/lines/0"}]`; sent != want {
		t.Errorf("want patch %s got %s", want, sent)
	}
	want = `[{"id":"l2","item":"ink","price":{"amount":20,"currency":"EUR"},"quantity":1}]`
	if got := linesJSON(t, m); got != want {
		t.Errorf("want lines %s got %s", want, got)
	}
	if !m.State().Is("/Ready/Fetched/Clean") {
		t.Errorf("want clean got %v", m.State().Current())
	}
}

func TestRemoveNew(t *testing.T) {
	r, _ := orderReg(t, nil)
	m, err := r.New("Order", map[string]interface{}{"number": 7})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	lines, _ := m.Children("lines")
	a, _ := lines.Add(map[string]interface{}{"item": "a"})
	lines.Add(map[string]interface{}{"item": "b"})
	if err := lines.Remove(a); err != nil {
		t.Fatalf("remove: %v", err)
	}
	var list []map[string]interface{}
	json.Unmarshal([]byte(linesJSON(t, m)), &list)
	if len(list) != 1 || list[0]["item"] != "b" {
		t.Errorf("never fetched collections splice got %v", list)
	}
	if err := lines.Remove("nope"); err == nil {
		t.Errorf("want error for unknown member")
	}
	lines.Clear()
	if lines.Len() != 0 || linesJSON(t, m) != "[]" {
		t.Errorf("want empty lines")
	}
	if !m.State().Is("/Ready/New") {
		t.Errorf("want new got %v", m.State().Current())
	}
}

func TestSetChildren(t *testing.T) {
	r, _ := orderReg(t, nil)
	m, _ := r.New("Order", nil)
	err := m.Set(map[string]interface{}{"lines": "x"}, false, false)
	if err == nil {
		t.Errorf("want array error")
	}
	err = m.Set(map[string]interface{}{"lines": []map[string]interface{}{{"item": "a"}, {"item": "b"}}}, false, false)
	if err != nil {
		t.Fatalf("set lines: %v", err)
	}
	lines, _ := m.Children("lines")
	if lines.Len() != 2 || lines.At(1).Data("item").Get() != "b" {
		t.Errorf("want two lines got %d", lines.Len())
	}
	if lines.At(0).Data("quantity").Get() != int64(1) {
		t.Errorf("want default quantity")
	}
	m.Clear()
	if lines.Len() != 0 {
		t.Errorf("clear must empty the collection")
	}
}

func TestToOne(t *testing.T) {
	r, _ := orderReg(t, nil)
	m, _ := fetchOrder(t, r)
	cust := m.Data("customer").Get().(*Model)
	m.Data("customer").Set(cust.JSON())
	if m.Data("customer").Get() != cust || !m.State().Is("/Ready/Fetched/Clean") {
		t.Errorf("setting equal data must keep the nested model")
	}
	m.Data("customer").Set(map[string]interface{}{"id": "c2", "firstName": "Alan", "phone": "123"})
	next := m.Data("customer").Get().(*Model)
	if next == cust || next.ID() != "c2" || !m.State().Is("/Ready/Fetched/Dirty") {
		t.Errorf("want new customer and dirty order got %v %v", next, m.State().Current())
	}
	if err := m.Data("customer").Set(42); err == nil {
		t.Errorf("want object error")
	}
	m.Fetch(context.Background()).Wait(context.Background())
	if got := m.Data("customer").Get().(*Model); got.ID() != "c1" || !got.State().Is("/Ready/Fetched/Clean") {
		t.Errorf("fetch must restore the customer got %v", got.State().Current())
	}
}

func TestSetHoles(t *testing.T) {
	r, _ := orderReg(t, nil)
	m, lines := fetchOrder(t, r)
	if err := lines.Remove("l1"); err != nil {
		t.Fatalf("remove l1: %v", err)
	}
	want := linesJSON(t, m)
	if err := m.Set(m.JSON(), true, false); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := linesJSON(t, m); got != want {
		t.Errorf("want lines %s got %s", want, got)
	}
	if lines.Len() != 1 || lines.At(0).ID() != "l2" {
		t.Errorf("holes must not become members got %d", lines.Len())
	}
	ops, err := patch.Diff(m.LastFetched(), m.JSON())
	if err != nil || len(ops) != 1 || ops[0].Op != "remove" || ops[0].Path != "/lines/0" {
		t.Errorf("want removal of the first line got %v %v", ops, err)
	}
}
