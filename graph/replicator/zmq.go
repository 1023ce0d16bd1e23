// Package replicator carries graph store updates between processes over
// zmq PUB/SUB sockets. Every local update is published on the bound
// endpoint and every registered store peer is subscribed to.
package replicator

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/YasiruR/mule-sync/graph"
	zmqPkg "github.com/pebbe/zmq4"
	"github.com/tryfix/log"
)

const (
	topicUpdate = `graph-update`
	pollTimeout = 250 * time.Millisecond
)

var schemes = []string{`tcp://`, `ipc://`, `inproc://`}

// Zmq owns one PUB and one SUB socket. zmq sockets are not thread safe,
// hence each socket is only touched by its own goroutine and the other
// goroutines talk to them through channels.
type Zmq struct {
	store    *graph.Store
	endpoint string
	pubChan  chan graph.Update
	conChan  chan string
	done     chan struct{}
	once     *sync.Once
	wg       *sync.WaitGroup
	cmp      *compactor
	log      log.Logger
}

func NewZmq(zmqCtx *zmqPkg.Context, store *graph.Store, endpoint string, l log.Logger) (*Zmq, error) {
	cmp, err := newCompactor()
	if err != nil {
		return nil, fmt.Errorf(`initializing compactor failed - %v`, err)
	}

	pub, err := zmqCtx.NewSocket(zmqPkg.PUB)
	if err != nil {
		return nil, fmt.Errorf(`creating zmq pub socket failed - %v`, err)
	}

	if err = pub.Bind(endpoint); err != nil {
		return nil, fmt.Errorf(`binding zmq pub socket to %s failed - %v`, endpoint, err)
	}

	sub, err := zmqCtx.NewSocket(zmqPkg.SUB)
	if err != nil {
		return nil, fmt.Errorf(`creating zmq sub socket failed - %v`, err)
	}

	if err = sub.SetSubscribe(topicUpdate); err != nil {
		return nil, fmt.Errorf(`setting zmq subscription failed for topic %s - %v`, topicUpdate, err)
	}

	z := &Zmq{
		store:    store,
		endpoint: endpoint,
		pubChan:  make(chan graph.Update, 64),
		conChan:  make(chan string, 8),
		done:     make(chan struct{}),
		once:     &sync.Once{},
		wg:       &sync.WaitGroup{},
		cmp:      cmp,
		log:      l,
	}

	z.wg.Add(2)
	go z.publisher(pub)
	go z.listen(sub)
	return z, nil
}

func (z *Zmq) Endpoint() string {
	return z.endpoint
}

func (z *Zmq) Broadcast(u graph.Update) error {
	select {
	case <-z.done:
		return fmt.Errorf(`replicator is closed`)
	default:
	}

	select {
	case z.pubChan <- u:
		return nil
	case <-z.done:
		return fmt.Errorf(`replicator is closed`)
	}
}

// Connect subscribes to a store peer. Endpoints without a zmq scheme
// (eg: relay HTTP addresses) cannot be reached by this transport and are
// skipped.
func (z *Zmq) Connect(endpoint string) error {
	if !Reachable(endpoint) {
		z.log.Trace(fmt.Sprintf(`skipped store peer %s - not a zmq endpoint`, endpoint))
		return nil
	}

	if endpoint == z.endpoint {
		return nil
	}

	select {
	case z.conChan <- endpoint:
		return nil
	case <-z.done:
		return fmt.Errorf(`replicator is closed`)
	}
}

// Close stops both socket goroutines and releases the compactor once
// neither of them can use it. Later calls are no-ops.
func (z *Zmq) Close() error {
	z.once.Do(func() {
		close(z.done)
		z.wg.Wait()
		z.cmp.close()
	})
	return nil
}

// Reachable reports whether the endpoint can be dialled by zmq
func Reachable(endpoint string) bool {
	for _, s := range schemes {
		if strings.HasPrefix(endpoint, s) {
			return true
		}
	}
	return false
}

func (z *Zmq) publisher(skt *zmqPkg.Socket) {
	defer z.wg.Done()
	defer skt.Close()
	for {
		select {
		case u := <-z.pubChan:
			data, err := json.Marshal(u)
			if err != nil {
				z.log.Error(fmt.Sprintf(`marshalling graph update failed - %v`, err))
				continue
			}

			if _, err = skt.SendMessage(topicUpdate, z.cmp.compress(data)); err != nil {
				z.log.Error(fmt.Sprintf(`publishing graph update for %s failed - %v`, u.Path, err))
			}
		case <-z.done:
			return
		}
	}
}

func (z *Zmq) listen(skt *zmqPkg.Socket) {
	defer z.wg.Done()
	defer skt.Close()
	poller := zmqPkg.NewPoller()
	poller.Add(skt, zmqPkg.POLLIN)

	for {
		select {
		case <-z.done:
			return
		case endpoint := <-z.conChan:
			if err := skt.Connect(endpoint); err != nil {
				z.log.Error(fmt.Sprintf(`connecting to store peer (%s) failed - %v`, endpoint, err))
				continue
			}
			z.log.Debug(fmt.Sprintf(`subscribed to store peer %s`, endpoint))
			continue
		default:
		}

		polled, err := poller.Poll(pollTimeout)
		if err != nil {
			z.log.Error(fmt.Sprintf(`polling sub socket failed - %v`, err))
			continue
		}

		if len(polled) == 0 {
			continue
		}

		frames, err := skt.RecvMessageBytes(0)
		if err != nil {
			z.log.Error(fmt.Sprintf(`receiving graph update failed - %v`, err))
			continue
		}

		if err = z.handle(frames); err != nil {
			z.log.Error(fmt.Sprintf(`processing received graph update failed - %v`, err))
		}
	}
}

func (z *Zmq) handle(frames [][]byte) error {
	if len(frames) != 2 {
		return fmt.Errorf(`received an invalid message (frame count=%d)`, len(frames))
	}

	data, err := z.cmp.decompress(frames[1])
	if err != nil {
		return err
	}

	var u graph.Update
	if err = json.Unmarshal(data, &u); err != nil {
		return fmt.Errorf(`unmarshalling graph update failed - %v`, err)
	}

	// own updates looping back through a peer
	if u.Origin == z.store.Id() {
		return nil
	}

	if err = z.store.Merge(u); err != nil {
		return fmt.Errorf(`merging update for %s failed - %v`, u.Path, err)
	}

	return nil
}
