package manager

import "testing"

func TestDefaultAgentPromotion(t *testing.T) {
	m := New()
	defer m.DisconnectAll()
	if err := m.AddAgent("a", "host-a", 1000, ""); err != nil {
		t.Fatalf("AddAgent(a): %v", err)
	}
	if err := m.AddAgent("b", "host-b", 1001, ""); err != nil {
		t.Fatalf("AddAgent(b): %v", err)
	}
	if got := m.GetConnectionStatus().DefaultAgentID; got != "a" {
		t.Fatalf("default after two adds = %q, want a", got)
	}

	if err := m.RemoveAgent("a"); err != nil {
		t.Fatalf("RemoveAgent(a): %v", err)
	}
	if got := m.GetConnectionStatus().DefaultAgentID; got != "b" {
		t.Fatalf("default after removing a = %q, want b", got)
	}

	if err := m.RemoveAgent("b"); err != nil {
		t.Fatalf("RemoveAgent(b): %v", err)
	}
	if got := m.GetConnectionStatus().DefaultAgentID; got != "" {
		t.Fatalf("default after removing last agent = %q, want empty", got)
	}
}

func TestAddAgentRejectsDuplicateID(t *testing.T) {
	m := New()
	defer m.DisconnectAll()
	if err := m.AddAgent("a", "host", 1000, ""); err != nil {
		t.Fatalf("first AddAgent: %v", err)
	}
	if err := m.AddAgent("a", "host", 1000, ""); err == nil {
		t.Fatal("expected duplicate id error, got nil")
	}
}

func TestRemoveUnknownAgentFails(t *testing.T) {
	m := New()
	if err := m.RemoveAgent("missing"); err == nil {
		t.Fatal("expected unknown agent error, got nil")
	}
}

func TestGetConnectionStatusCounts(t *testing.T) {
	m := New()
	defer m.DisconnectAll()
	_ = m.AddAgent("a", "host-a", 1000, "Kitchen")
	_ = m.AddAgent("b", "host-b", 1001, "Lounge")

	st := m.GetConnectionStatus()
	if st.TotalAgents != 2 {
		t.Fatalf("TotalAgents = %d, want 2", st.TotalAgents)
	}
	if len(st.Agents) != 2 {
		t.Fatalf("len(Agents) = %d, want 2", len(st.Agents))
	}
}
