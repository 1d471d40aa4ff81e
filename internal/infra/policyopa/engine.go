package policyopa

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"docsign/internal/domain"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

const (
	defaultQuery    = "data.docsign.integrity.result"
	builtinBundleID = "builtin_integrity_v1"
)

//go:embed policy/*.rego
var builtinPolicy embed.FS

type Engine struct {
	query      rego.PreparedEvalQuery
	bundleHash string
	bundleID   string
}

// NewEngine loads the rego bundle at bundlePath, or the built-in integrity
// policy when bundlePath is empty.
func NewEngine(ctx context.Context, bundlePath string) (*Engine, error) {
	if strings.TrimSpace(bundlePath) == "" {
		return newBuiltinEngine(ctx)
	}
	bundleHash, err := ComputeBundleHashFromPath(bundlePath)
	if err != nil {
		return nil, err
	}
	return prepare(ctx, bundlePath, bundleHash, rego.Load([]string{bundlePath}, nil))
}

func newBuiltinEngine(ctx context.Context) (*Engine, error) {
	bundleHash, err := ComputeBundleHashFromFS(builtinPolicy, "policy")
	if err != nil {
		return nil, err
	}
	src, err := builtinPolicy.ReadFile("policy/integrity.rego")
	if err != nil {
		return nil, err
	}
	return prepare(ctx, builtinBundleID, bundleHash, rego.Module("integrity.rego", string(src)))
}

func prepare(ctx context.Context, bundleID, bundleHash string, source func(*rego.Rego)) (*Engine, error) {
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	r := rego.New(
		rego.Query(defaultQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
		source,
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	if names := forbiddenCalls(compiler.Modules); len(names) > 0 {
		return nil, fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
	}
	return &Engine{
		query:      prepared,
		bundleHash: bundleHash,
		bundleID:   bundleID,
	}, nil
}

func (e *Engine) BundleHash() string {
	return e.bundleHash
}

func (e *Engine) BundleID() string {
	return e.bundleID
}

func (e *Engine) EvaluateIntegrity(ctx context.Context, input domain.PolicyInput) (domain.PolicyEvaluation, error) {
	if e == nil {
		return domain.PolicyEvaluation{}, errors.New("policy engine is nil")
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.PolicyEvaluation{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.PolicyEvaluation{}, errors.New("empty policy result")
	}
	result, err := decodePolicyResult(results[0].Expressions[0].Value)
	if err != nil {
		return domain.PolicyEvaluation{}, err
	}
	normalizePolicyResult(&result)
	return domain.PolicyEvaluation{
		BundleID:   e.bundleID,
		BundleHash: e.bundleHash,
		Result:     result,
	}, nil
}

func decodePolicyResult(value any) (domain.PolicyResult, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return domain.PolicyResult{}, err
	}
	var result domain.PolicyResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return domain.PolicyResult{}, err
	}
	return result, nil
}

// normalizePolicyResult orders deny reasons by code, then message, so that
// set iteration order in rego never shows up in responses.
func normalizePolicyResult(result *domain.PolicyResult) {
	if result == nil {
		return
	}
	sort.Slice(result.Deny, func(i, j int) bool {
		a, b := result.Deny[i], result.Deny[j]
		return a.Code < b.Code || (a.Code == b.Code && a.Message < b.Message)
	})
}
