// Where: internal/deploy/executor.go
// What: The terraform plan/apply/destroy executor over isolated workspaces.
// Why: One deployment, one working directory, one totally ordered lifecycle.
package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsloom/iacpilot/internal/secrets"
)

// Timeouts bounds each terraform phase independently. A timeout transitions
// the deployment to the matching _failed status.
type Timeouts struct {
	Init    time.Duration
	Plan    time.Duration
	Apply   time.Duration
	Destroy time.Duration
}

// DefaultTimeouts mirrors the provider-download-heavy reality of init and
// the slow tail of applies.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Init:    15 * time.Minute,
		Plan:    30 * time.Minute,
		Apply:   30 * time.Minute,
		Destroy: 30 * time.Minute,
	}
}

// Executor drives terraform runs and owns deployment status transitions.
type Executor struct {
	store    Store
	runner   Runner
	box      *secrets.Box
	workRoot string
	timeouts Timeouts

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewExecutor wires the executor. workRoot defaults under the system temp
// directory.
func NewExecutor(store Store, runner Runner, box *secrets.Box, workRoot string, timeouts Timeouts) (*Executor, error) {
	if store == nil {
		return nil, fmt.Errorf("executor: store is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("executor: runner is required")
	}
	if box == nil {
		return nil, fmt.Errorf("executor: secrets box is required")
	}
	if workRoot == "" {
		workRoot = filepath.Join(os.TempDir(), "iacpilot", "deployments")
	}
	zero := Timeouts{}
	if timeouts == zero {
		timeouts = DefaultTimeouts()
	}
	return &Executor{
		store:    store,
		runner:   runner,
		box:      box,
		workRoot: workRoot,
		timeouts: timeouts,
	}, nil
}

// Plan creates a deployment, writes the files into a fresh working
// directory, and runs terraform init + plan. It returns the deployment in
// plan_ready or plan_failed; the error covers infrastructure faults only.
func (e *Executor) Plan(ctx context.Context, sessionID string, environmentID int64, files map[string]string) (*Deployment, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("executor: no terraform files to plan")
	}

	d := &Deployment{
		DeploymentID:  "dep_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
		SessionID:     sessionID,
		EnvironmentID: environmentID,
		Status:        StatusPending,
		Files:         files,
	}
	if err := e.store.CreateDeployment(ctx, d); err != nil {
		return nil, fmt.Errorf("executor: create deployment: %w", err)
	}

	lock := e.deploymentLock(d.DeploymentID)
	lock.Lock()
	defer lock.Unlock()

	env, err := e.store.GetEnvironment(ctx, environmentID)
	if err != nil {
		return e.fail(ctx, d, StatusPlanFailed, fmt.Sprintf("environment %d not found: %v", environmentID, err)), nil
	}
	creds, err := e.credentials(env)
	if err != nil {
		return e.fail(ctx, d, StatusPlanFailed, err.Error()), nil
	}

	d.Status = StatusPlanning
	e.update(ctx, d)

	workDir, err := e.prepareWorkDir(d)
	if err != nil {
		return e.fail(ctx, d, StatusPlanFailed, err.Error()), nil
	}
	d.WorkDir = workDir

	childEnv := creds.Env(env.Platform)

	initCtx, cancel := context.WithTimeout(ctx, e.timeouts.Init)
	defer cancel()
	result, err := e.runner.Run(initCtx, workDir, childEnv, "init", "-no-color", "-input=false")
	if err != nil || result.ExitCode != 0 {
		e.removeStaleLock(workDir)
		msg := "terraform init failed"
		if err != nil {
			msg = fmt.Sprintf("terraform init failed: %v", err)
		}
		d.PlanOutput = result.Combined()
		return e.fail(ctx, d, StatusPlanFailed, msg), nil
	}

	planCtx, cancel := context.WithTimeout(ctx, e.timeouts.Plan)
	defer cancel()
	result, err = e.runner.Run(planCtx, workDir, childEnv, "plan", "-no-color", "-input=false", "-out=tfplan")
	d.PlanOutput = result.Combined()
	if err != nil || result.ExitCode != 0 {
		e.removeStaleLock(workDir)
		msg := "terraform plan failed"
		if err != nil {
			msg = fmt.Sprintf("terraform plan failed: %v", err)
		}
		return e.fail(ctx, d, StatusPlanFailed, msg), nil
	}

	summary := ParsePlanSummary(d.PlanOutput)
	d.PlanSummary = &summary
	d.Status = StatusPlanReady
	e.update(ctx, d)
	return d, nil
}

// Apply runs terraform apply on a plan_ready deployment's saved plan.
func (e *Executor) Apply(ctx context.Context, deploymentID string) (*Deployment, error) {
	lock := e.deploymentLock(deploymentID)
	lock.Lock()
	defer lock.Unlock()

	d, err := e.store.GetDeployment(ctx, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("executor: deployment %s: %w", deploymentID, err)
	}
	if d.Status != StatusPlanReady {
		return nil, fmt.Errorf("executor: deployment must be plan_ready, current: %s", d.Status)
	}
	if d.WorkDir == "" || !dirExists(d.WorkDir) {
		return e.fail(ctx, d, StatusApplyFailed, "working directory not found"), nil
	}

	env, err := e.store.GetEnvironment(ctx, d.EnvironmentID)
	if err != nil {
		return e.fail(ctx, d, StatusApplyFailed, fmt.Sprintf("environment %d not found: %v", d.EnvironmentID, err)), nil
	}
	creds, err := e.credentials(env)
	if err != nil {
		return e.fail(ctx, d, StatusApplyFailed, err.Error()), nil
	}
	childEnv := creds.Env(env.Platform)

	d.Status = StatusApplying
	e.update(ctx, d)

	applyCtx, cancel := context.WithTimeout(ctx, e.timeouts.Apply)
	defer cancel()
	result, err := e.runner.Run(applyCtx, d.WorkDir, childEnv,
		"apply", "-no-color", "-input=false", "-auto-approve", "tfplan")
	d.ApplyOutput = result.Combined()
	if err != nil || result.ExitCode != 0 {
		e.removeStaleLock(d.WorkDir)
		msg := "terraform apply failed"
		if err != nil {
			msg = fmt.Sprintf("terraform apply failed: %v", err)
		}
		return e.fail(ctx, d, StatusApplyFailed, msg), nil
	}

	outputResult, err := e.runner.Run(applyCtx, d.WorkDir, childEnv, "output", "-json")
	if err == nil && outputResult.ExitCode == 0 && strings.TrimSpace(outputResult.Stdout) != "" {
		var outputs map[string]any
		if jsonErr := json.Unmarshal([]byte(outputResult.Stdout), &outputs); jsonErr == nil {
			d.TerraformOutputs = outputs
		}
	}

	now := time.Now().UTC()
	d.Status = StatusApplySuccess
	d.CompletedAt = &now
	e.update(ctx, d)
	return d, nil
}

// Destroy tears down an applied deployment. It is idempotent relative to
// the destroyed state and recreates the workspace from the stored files
// when the directory has already been cleaned.
func (e *Executor) Destroy(ctx context.Context, deploymentID string) (*Deployment, error) {
	lock := e.deploymentLock(deploymentID)
	lock.Lock()
	defer lock.Unlock()

	d, err := e.store.GetDeployment(ctx, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("executor: deployment %s: %w", deploymentID, err)
	}
	if d.Status == StatusDestroyed {
		return d, nil
	}
	if d.Status != StatusApplySuccess {
		return nil, fmt.Errorf("executor: can only destroy applied deployments, current: %s", d.Status)
	}

	env, err := e.store.GetEnvironment(ctx, d.EnvironmentID)
	if err != nil {
		return nil, fmt.Errorf("executor: environment %d: %w", d.EnvironmentID, err)
	}
	creds, err := e.credentials(env)
	if err != nil {
		return nil, err
	}
	childEnv := creds.Env(env.Platform)

	if d.WorkDir == "" || !dirExists(d.WorkDir) {
		workDir, prepErr := e.prepareWorkDir(d)
		if prepErr != nil {
			return nil, prepErr
		}
		d.WorkDir = workDir
		initCtx, cancel := context.WithTimeout(ctx, e.timeouts.Init)
		defer cancel()
		if result, initErr := e.runner.Run(initCtx, workDir, childEnv, "init", "-no-color", "-input=false"); initErr != nil || result.ExitCode != 0 {
			return nil, fmt.Errorf("executor: re-init for destroy failed: %s", result.Combined())
		}
	}

	d.Status = StatusDestroying
	e.update(ctx, d)

	destroyCtx, cancel := context.WithTimeout(ctx, e.timeouts.Destroy)
	defer cancel()
	result, err := e.runner.Run(destroyCtx, d.WorkDir, childEnv,
		"destroy", "-no-color", "-input=false", "-auto-approve")
	if err != nil || result.ExitCode != 0 {
		d.ErrorMessage = "terraform destroy failed:\n" + result.Combined()
		d.Status = StatusApplySuccess
		e.update(ctx, d)
		return d, fmt.Errorf("executor: terraform destroy failed")
	}

	d.ApplyOutput += "\n\n--- DESTROY OUTPUT ---\n" + result.Combined()
	d.Status = StatusDestroyed
	e.update(ctx, d)
	e.Cleanup(d)
	return d, nil
}

// Cleanup removes the deployment's working directory. Failed deployments
// keep their directory for post-mortem until Cleanup is called explicitly.
func (e *Executor) Cleanup(d *Deployment) {
	if d == nil || d.WorkDir == "" {
		return
	}
	// Refuse to remove anything outside the executor's workspace root.
	if !strings.HasPrefix(filepath.Clean(d.WorkDir), filepath.Clean(e.workRoot)) {
		return
	}
	_ = os.RemoveAll(d.WorkDir)
}

func (e *Executor) prepareWorkDir(d *Deployment) (string, error) {
	workDir := filepath.Join(e.workRoot, d.DeploymentID)
	if err := os.MkdirAll(workDir, 0o700); err != nil {
		return "", fmt.Errorf("executor: create work dir: %w", err)
	}
	for filename, content := range d.Files {
		if filepath.Base(filename) != filename {
			return "", fmt.Errorf("executor: invalid filename %q", filename)
		}
		if err := os.WriteFile(filepath.Join(workDir, filename), []byte(content), 0o600); err != nil {
			return "", fmt.Errorf("executor: write %s: %w", filename, err)
		}
	}
	return workDir, nil
}

// credentials decrypts the environment's credential blob. The plain-text
// form lives only in memory and the spawned child's environment.
func (e *Executor) credentials(env *Environment) (Credentials, error) {
	var creds Credentials
	if env.CredentialsCipher == "" {
		return creds, nil
	}
	plain, err := e.box.Open(env.CredentialsCipher)
	if err != nil {
		return creds, fmt.Errorf("executor: decrypt credentials: %w", err)
	}
	if err := json.Unmarshal(plain, &creds); err != nil {
		return creds, fmt.Errorf("executor: decode credentials: %w", err)
	}
	return creds, nil
}

func (e *Executor) fail(ctx context.Context, d *Deployment, status Status, msg string) *Deployment {
	d.Status = status
	d.ErrorMessage = msg
	e.update(ctx, d)
	return d
}

func (e *Executor) update(ctx context.Context, d *Deployment) {
	// Persistence faults must not mask the terraform outcome; the caller
	// still gets the in-memory record.
	_ = e.store.UpdateDeployment(ctx, d)
}

// removeStaleLock clears the terraform state lock left behind by a killed
// process so the next run does not deadlock.
func (e *Executor) removeStaleLock(workDir string) {
	_ = os.Remove(filepath.Join(workDir, ".terraform.tfstate.lock.info"))
}

func (e *Executor) deploymentLock(deploymentID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locks == nil {
		e.locks = map[string]*sync.Mutex{}
	}
	lock, ok := e.locks[deploymentID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[deploymentID] = lock
	}
	return lock
}

// dirExists reports whether path exists and is a directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
