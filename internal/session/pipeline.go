package session

import (
	"context"
	"fmt"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"netwalk/internal/arpscan"
	"netwalk/internal/budgeter"
	"netwalk/internal/buffer"
	"netwalk/internal/deepscan"
	"netwalk/internal/domain"
	"netwalk/internal/endpoint"
	"netwalk/internal/errs"
	"netwalk/internal/scanctl"
	"netwalk/internal/snmpwalk"
)

// candidateChannelSize is the bounded channel ARP results and
// non-interfaced targets are bridged onto, per spec.md §4.7 step 4
// ("async bounded channel of size 256").
const candidateChannelSize = 256

// tickerInterval drives the 1s progress re-evaluation spec.md §4.7
// step 6 calls for.
const tickerInterval = time.Second

// candidate is one target ready for a deep scan: an ARP-resolved hit
// (MAC set) or a non-interfaced target (MAC empty).
type candidate struct {
	IP     net.IP
	MAC    string
	Subnet *domain.Subnet
}

// batchTracker holds the deep-scan progress denominator/numerator
// spec.md §4.7 describes as "completed batches / total batches,
// denominator grows as responsive hosts are confirmed." total only
// grows once the Deep Scanner's onResponsive callback fires for a
// candidate — after its step 1 responsiveness gate passes for a
// non-interfaced host, or immediately for an ARP-resolved one — per
// spec.md §9's lazy-credit rule and §8's boundary scenario ("total
// never incremented for" a non-interfaced host that turns out
// unresponsive).
type batchTracker struct {
	total     atomic.Int64
	completed atomic.Int64
}

// Runner drives one discovery session end to end. Collaborators are
// held long enough to be reused across sessions; per-session state
// (the batch tracker, the deep-scan Scanner instance, the progress
// tracker) is constructed fresh inside Run.
type Runner struct {
	buf            *buffer.Buffer
	controller     *scanctl.Controller
	endpointProber *endpoint.Prober
	snmpWalker     *snmpwalk.Walker
	reporter       ProgressReporter

	arpAvailable func(iface string) bool
	arpScan      func(ctx context.Context, req arpscan.Request) (<-chan arpscan.Hit, error)

	newDeepScanner func(onBatchDone func(), onResponsive func()) *deepscan.Scanner
	runDeepScan    func(ctx context.Context, scanner *deepscan.Scanner, req deepscan.Request) (deepscan.Outcome, error)

	raiseConcurrency func(prev budgeter.ConcurrencyParams, concurrencyOverride, portBatchOverride int) (budgeter.ConcurrencyParams, error)
	initialBudget    func(concurrencyOverride, portBatchOverride int) (budgeter.ConcurrencyParams, error)

	gracePeriod  time.Duration
	tickInterval time.Duration
}

// New returns a Runner with its collaborators wired to their real
// implementations. Tests substitute the function fields directly
// (white-box, same package) to exercise the pipeline without a live
// network.
func New(buf *buffer.Buffer, controller *scanctl.Controller, endpointProber *endpoint.Prober, snmpWalker *snmpwalk.Walker, reporter ProgressReporter) *Runner {
	return &Runner{
		buf:            buf,
		controller:     controller,
		endpointProber: endpointProber,
		snmpWalker:     snmpWalker,
		reporter:       reporter,

		arpAvailable: arpscan.Available,
		arpScan:      arpscan.Scan,

		newDeepScanner: func(onBatchDone func(), onResponsive func()) *deepscan.Scanner {
			return deepscan.New(controller, endpointProber, snmpWalker, onBatchDone, onResponsive)
		},
		runDeepScan: func(ctx context.Context, scanner *deepscan.Scanner, req deepscan.Request) (deepscan.Outcome, error) {
			return scanner.Scan(ctx, req)
		},

		raiseConcurrency: budgeter.Raise,
		initialBudget:    budgeter.OptimalConcurrentScans,

		gracePeriod:  gracePeriod,
		tickInterval: tickerInterval,
	}
}

type hostOutcome struct {
	outcome deepscan.Outcome
	err     error
}

// resolveSubnets returns req.Subnets if given, else enumerates the
// host's own interface subnets (spec.md §4.7 step 1's "else" branch),
// pushing any newly-discovered subnet into the entity buffer.
func (r *Runner) resolveSubnets(req Request) ([]SubnetTarget, error) {
	if len(req.Subnets) > 0 {
		return req.Subnets, nil
	}

	targets, err := enumerateOwnSubnets(req.NetworkID)
	if err != nil {
		return nil, errs.NewCritical(fmt.Errorf("enumerate own subnets: %w", err))
	}
	for _, t := range targets {
		r.buf.PushSubnet(t.Subnet)
	}
	return targets, nil
}

// partition splits targets into interfaced (ARP-capable) and
// non-interfaced, per spec.md §4.7 step 3. A target with no interface
// name, or one whose interface fails the ARP availability probe, is
// non-interfaced.
func (r *Runner) partition(targets []SubnetTarget) (interfaced, nonInterfaced []SubnetTarget) {
	for _, t := range targets {
		if t.Interface != "" && r.arpAvailable(t.Interface) {
			interfaced = append(interfaced, t)
		} else {
			nonInterfaced = append(nonInterfaced, t)
		}
	}
	return interfaced, nonInterfaced
}

// runARPProducer sweeps one interfaced subnet and forwards every ARP
// hit onto candidateCh, per spec.md §4.7 step 4.
func (r *Runner) runARPProducer(ctx context.Context, target SubnetTarget, req Request, candidateCh chan<- candidate, wg *sync.WaitGroup) {
	defer wg.Done()

	ips, err := expandSubnet(target.Subnet.CIDR)
	if err != nil {
		return
	}
	ordered := orderCandidates(ips)

	hits, err := r.arpScan(ctx, arpscan.Request{
		Interface: target.Interface,
		Targets:   ordered,
		Retries:   req.ARPRetries,
		RatePPS:   req.RatePPS,
	})
	if err != nil {
		return
	}

	subnet := target.Subnet
	for hit := range hits {
		select {
		case <-ctx.Done():
			return
		case candidateCh <- candidate{IP: hit.IP, MAC: hit.MAC.String(), Subnet: &subnet}:
		}
	}
}

// enqueueNonInterfaced enqueues every address in target directly, with
// no MAC, per spec.md §4.7 step 5.
func (r *Runner) enqueueNonInterfaced(ctx context.Context, target SubnetTarget, candidateCh chan<- candidate, wg *sync.WaitGroup) {
	defer wg.Done()

	ips, err := expandSubnet(target.Subnet.CIDR)
	if err != nil {
		return
	}
	ordered := orderCandidates(ips)
	subnet := target.Subnet

	for _, ip := range ordered {
		select {
		case <-ctx.Done():
			return
		case candidateCh <- candidate{IP: ip, Subnet: &subnet}:
		}
	}
}

// plannedBatchesFor estimates how many port-scan batches a host at the
// controller's current batch size will need, for the progress
// denominator.
func plannedBatchesFor(batchSize int) int64 {
	return int64(math.Ceil(65535.0 / float64(maxInt(1, batchSize))))
}

// Run drives req to completion or cancellation, reporting progress
// through the Runner's ProgressReporter as it goes. It always returns;
// ctx cancellation yields Result{State: StateCancelled} rather than an
// error, per spec.md §4.6/§4.7's cancellation-is-a-distinguished-result
// rule.
func (r *Runner) Run(ctx context.Context, req Request) Result {
	tracker := newProgressTracker(r.reporter)
	report := func(s State, percent int) {
		tracker.report(ctx, s, percent)
	}

	report(StateStarting, 0)

	targets, err := r.resolveSubnets(req)
	if err != nil {
		report(StateFailed, 0)
		return Result{State: StateFailed, Error: err}
	}

	report(StateStarted, 0)

	interfacedTargets, nonInterfacedTargets := r.partition(targets)

	arpTargetCount := 0
	for _, t := range interfacedTargets {
		ips, err := expandSubnet(t.Subnet.CIDR)
		if err == nil {
			arpTargetCount += len(ips)
		}
	}
	arpEstimate := arpPhaseDuration(arpTargetCount, req.ARPRetries, req.RatePPS)
	arpStart := time.Now()

	candidateCh := make(chan candidate, candidateChannelSize)
	var producers sync.WaitGroup
	for _, t := range interfacedTargets {
		producers.Add(1)
		go r.runARPProducer(ctx, t, req, candidateCh, &producers)
	}
	for _, t := range nonInterfacedTargets {
		producers.Add(1)
		go r.enqueueNonInterfaced(ctx, t, candidateCh, &producers)
	}
	go func() {
		producers.Wait()
		close(candidateCh)
	}()

	report(StateScanning, arpPhasePercent(0, arpEstimate))

	bt := &batchTracker{}
	scanner := r.newDeepScanner(
		func() { bt.completed.Add(1) },
		func() { bt.total.Add(plannedBatchesFor(r.controller.BatchSize())) },
	)

	budget, err := r.initialBudget(req.ConcurrencyOverride, req.PortBatchSize)
	if err != nil {
		report(StateFailed, tracker.currentPercent())
		return Result{State: StateFailed, Error: err}
	}
	concurrency := budget.ConcurrentScans

	permits := make(chan struct{}, budgeter.MaxConcurrentScans)
	for i := 0; i < concurrency; i++ {
		permits <- struct{}{}
	}

	results := make(chan hostOutcome, 64)
	var inflight sync.WaitGroup

	dispatch := func(c candidate) {
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			select {
			case <-permits:
			case <-ctx.Done():
				return
			}
			defer func() { permits <- struct{}{} }()

			dreq := deepscan.Request{
				IP:             c.IP,
				Subnet:         c.Subnet,
				MAC:            c.MAC,
				Gateways:       req.Gateways,
				SNMPCredential: req.SNMPCredential,
				RatePPS:        req.RatePPS,
				BatchSize:      req.PortBatchSize,
			}
			outcome, err := r.runDeepScan(ctx, scanner, dreq)
			select {
			case results <- hostOutcome{outcome: outcome, err: err}:
			case <-ctx.Done():
			}
		}()
	}

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	candidatesOpen := true
	resultsOpen := true
	raised := false
	var idleSince time.Time

	for {
		select {
		case <-ctx.Done():
			report(StateCancelled, tracker.currentPercent())
			return Result{State: StateCancelled}

		case c, ok := <-candidateCh:
			if !ok {
				candidateCh = nil
				candidatesOpen = false
				// Every candidate ever sent has now been received and
				// dispatched (channel closes only after draining), so
				// inflight's count can only fall from here — safe to
				// wait on it without racing a later Add.
				go func() {
					inflight.Wait()
					close(results)
				}()
				if !raised {
					if next, err := r.raiseConcurrency(budget, req.ConcurrencyOverride, req.PortBatchSize); err == nil {
						delta := next.ConcurrentScans - concurrency
						for i := 0; i < delta; i++ {
							permits <- struct{}{}
						}
						concurrency = next.ConcurrentScans
						budget = next
					}
					raised = true
				}
				continue
			}
			dispatch(c)

		case res, ok := <-results:
			if !ok {
				results = nil
				resultsOpen = false
				idleSince = time.Now()
				continue
			}
			if res.err == nil && res.outcome.Host != nil {
				r.buf.PushHost(*res.outcome.Host)
			}
			report(StateScanning, deepScanPercent(int(bt.completed.Load()), int(bt.total.Load())))

		case <-ticker.C:
			switch {
			case candidatesOpen:
				report(StateScanning, arpPhasePercent(time.Since(arpStart), arpEstimate))
			case resultsOpen:
				report(StateScanning, deepScanPercent(int(bt.completed.Load()), int(bt.total.Load())))
			default:
				elapsed := time.Since(idleSince)
				report(StateScanning, gracePercent(elapsed, r.gracePeriod))
				if elapsed >= r.gracePeriod {
					report(StateComplete, 100)
					return Result{State: StateComplete}
				}
			}
		}
	}
}
