package kubernetes

import (
	"context"
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	sandboxv1alpha1 "sigs.k8s.io/agent-sandbox/api/v1alpha1"
	extensionsv1alpha1 "sigs.k8s.io/agent-sandbox/extensions/api/v1alpha1"
)

func testScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme, err := NewScheme()
	if err != nil {
		t.Fatalf("NewScheme: %v", err)
	}
	return scheme
}

func fakeClusterClient(t *testing.T) client.Client {
	t.Helper()
	return fake.NewClientBuilder().
		WithScheme(testScheme(t)).
		WithStatusSubresource(&sandboxv1alpha1.Sandbox{}).
		Build()
}

// markReady creates a Sandbox with Ready=True for the given claim name,
// mimicking what the agent-sandbox controller does when a claim appears.
func markReady(t *testing.T, c client.Client, name, namespace, fqdn string) {
	t.Helper()
	sb := &sandboxv1alpha1.Sandbox{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
	}
	if err := c.Create(context.Background(), sb); err != nil {
		t.Fatalf("markReady: create sandbox: %v", err)
	}
	sb.Status.ServiceFQDN = fqdn
	sb.Status.Conditions = []metav1.Condition{{
		Type:               string(sandboxv1alpha1.SandboxConditionReady),
		Status:             metav1.ConditionTrue,
		LastTransitionTime: metav1.Now(),
		Reason:             "Ready",
	}}
	if err := c.Status().Update(context.Background(), sb); err != nil {
		t.Fatalf("markReady: update status: %v", err)
	}
}

func withClaimName(t *testing.T, name string) {
	t.Helper()
	orig := generateClaimNameFn
	generateClaimNameFn = func() string { return name }
	t.Cleanup(func() { generateClaimNameFn = orig })
}

func TestClaimAcquirer_AcquireAndRelease(t *testing.T) {
	c := fakeClusterClient(t)
	acquirer := NewClaimAcquirer(c, "exec-template", "default", 5*time.Second)
	withClaimName(t, "claim-001")

	go func() {
		time.Sleep(200 * time.Millisecond)
		markReady(t, c, "claim-001", "default", "sandbox-001.default.svc.cluster.local")
	}()

	url, release, err := acquirer.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if url != "http://sandbox-001.default.svc.cluster.local:8080" {
		t.Errorf("url = %q", url)
	}

	claim := &extensionsv1alpha1.SandboxClaim{}
	if err := c.Get(context.Background(), client.ObjectKey{Name: "claim-001", Namespace: "default"}, claim); err != nil {
		t.Fatalf("SandboxClaim not found: %v", err)
	}
	if claim.Spec.TemplateRef.Name != "exec-template" {
		t.Errorf("templateRef = %q, want exec-template", claim.Spec.TemplateRef.Name)
	}

	release()
	if err := c.Get(context.Background(), client.ObjectKey{Name: "claim-001", Namespace: "default"}, claim); err == nil {
		t.Error("SandboxClaim still exists after release")
	}
}

func TestClaimAcquirer_Timeout(t *testing.T) {
	c := fakeClusterClient(t)
	acquirer := NewClaimAcquirer(c, "exec-template", "default", 1*time.Second)
	withClaimName(t, "claim-timeout")

	// No Sandbox ever becomes ready.
	if _, _, err := acquirer.Acquire(context.Background()); err == nil {
		t.Fatal("expected timeout error, got nil")
	}

	// The claim must be cleaned up despite the timeout.
	claim := &extensionsv1alpha1.SandboxClaim{}
	if err := c.Get(context.Background(), client.ObjectKey{Name: "claim-timeout", Namespace: "default"}, claim); err == nil {
		t.Error("SandboxClaim still exists after timeout")
	}
}

func TestClaimAcquirer_ContextCancelled(t *testing.T) {
	c := fakeClusterClient(t)
	acquirer := NewClaimAcquirer(c, "exec-template", "default", 30*time.Second)
	withClaimName(t, "claim-cancel")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	if _, _, err := acquirer.Acquire(ctx); err == nil {
		t.Fatal("expected context cancellation error, got nil")
	}

	claim := &extensionsv1alpha1.SandboxClaim{}
	if err := c.Get(context.Background(), client.ObjectKey{Name: "claim-cancel", Namespace: "default"}, claim); err == nil {
		t.Error("SandboxClaim still exists after context cancel")
	}
}

func TestIsReady(t *testing.T) {
	tests := []struct {
		name       string
		conditions []metav1.Condition
		want       bool
	}{
		{name: "no conditions", want: false},
		{
			name: "ready true",
			conditions: []metav1.Condition{
				{Type: string(sandboxv1alpha1.SandboxConditionReady), Status: metav1.ConditionTrue},
			},
			want: true,
		},
		{
			name: "ready false",
			conditions: []metav1.Condition{
				{Type: string(sandboxv1alpha1.SandboxConditionReady), Status: metav1.ConditionFalse},
			},
			want: false,
		},
		{
			name: "other condition only",
			conditions: []metav1.Condition{
				{Type: "Available", Status: metav1.ConditionTrue},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb := &sandboxv1alpha1.Sandbox{
				Status: sandboxv1alpha1.SandboxStatus{Conditions: tt.conditions},
			}
			if got := isReady(sb); got != tt.want {
				t.Errorf("isReady() = %v, want %v", got, tt.want)
			}
		})
	}
}
