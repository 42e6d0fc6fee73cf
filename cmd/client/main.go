package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/denzelpenzel/mcbridge/cmd/client/textprot"
	"github.com/denzelpenzel/mcbridge/internal/logging"
	"github.com/denzelpenzel/mcbridge/internal/utils"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

const batchSize = 8

var (
	taskPool = &sync.Pool{
		New: func() interface{} {
			return &Task{}
		},
	}
)

type Task struct {
	Cmd   Op
	Keys  [][]byte
	Value []byte
}

func main() {
	ctx := context.Background()
	logger := logging.WithContext(ctx)

	a := cli.NewApp()
	a.Name = "mcbridge load client"
	a.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "pprof-file",
			Usage: "Write a CPU profile of the client to this file",
		},
		&cli.IntFlag{
			Name:  "num-ops",
			Value: 1000000,
			Usage: "Set up the number of ops",
		},
		&cli.IntFlag{
			Name:  "num-workers",
			Value: runtime.GOMAXPROCS(0),
			Usage: "Connections issuing commands in parallel",
		},
		&cli.IntFlag{
			Name:  "key-space",
			Value: 10000,
			Usage: "Distinct keys the ops are spread over",
		},
		&cli.BoolFlag{
			Name:  "histogram",
			Usage: "Print a latency histogram per operation",
		},
		&cli.StringFlag{
			Name:  "server-addr",
			Value: "localhost:11211",
			Usage: "mcbridge text protocol address",
		},
	}
	a.Action = run
	a.Commands = []cli.Command{}

	err := a.Run(os.Args)
	if err != nil {
		logger.Fatal("Error running application", zap.Error(err))
	}
}

func run(c *cli.Context) error {
	numOps := c.Int("num-ops")
	numWorkers := c.Int("num-workers")
	histogram := c.Bool("histogram")
	addr := c.String("server-addr")
	keys := utils.GenKeys(c.Int("key-space"))

	if numWorkers <= 0 || len(keys) == 0 {
		return errors.New("num-workers and key-space must be positive")
	}

	if name := c.String("pprof-file"); name != "" {
		f, err := os.Create(name)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	numCmds := len(allOps)
	opsPerCmd := numOps / numCmds

	metrics := make(chan metric, numWorkers*64)
	tasks := make(chan *Task, numWorkers*64)

	fmt.Printf("Running %v ops total with:\n"+
		"\t%v workers\n"+
		"\tcommands %v\n"+
		"\t%v keys\n"+
		"\toperations per command %v\n\n",
		numOps, numWorkers, allOps, len(keys), opsPerCmd)

	conns := make([]net.Conn, 0, numWorkers)
	for i := 0; i < numWorkers; i++ {
		conn, err := utils.Connect(addr)
		if err != nil {
			for _, open := range conns {
				open.Close()
			}
			return fmt.Errorf("connect to %s: %w", addr, err)
		}
		conns = append(conns, conn)
	}

	tasksWg := &sync.WaitGroup{}
	tasksWg.Add(numCmds)
	for _, op := range allOps {
		go func(op Op) {
			defer tasksWg.Done()
			for i := 0; i < opsPerCmd; i++ {
				task := taskPool.Get().(*Task)
				task.Cmd = op
				task.Keys = pickKeys(keys, op)
				task.Value = genData(op)
				tasks <- task
			}
		}(op)
	}

	connWg := &sync.WaitGroup{}
	for _, conn := range conns {
		connWg.Add(1)
		go execute(conn, connWg, tasks, metrics)
	}

	stats := &sync.WaitGroup{}
	stats.Add(1)
	go func() {
		defer stats.Done()
		hits := make(map[Op][]int)
		misses := make(map[Op][]int)

		for m := range metrics {
			if m.miss {
				misses[m.op] = append(misses[m.op], int(m.duration))
			} else {
				hits[m.op] = append(hits[m.op], int(m.duration))
			}
		}

		fmt.Println("===========Metrics===========")
		for _, op := range allOps {
			renderStats("hits", op, hits[op], histogram)
			renderStats("misses", op, misses[op], histogram)
			fmt.Println("=============================")
		}
	}()

	fmt.Println("Start tasks execution...")
	tasksWg.Wait()
	close(tasks)

	connWg.Wait()
	fmt.Println("Execution done")
	close(metrics)

	stats.Wait()
	return nil
}

func execute(conn net.Conn, connWg *sync.WaitGroup, tasks <-chan *Task, metrics chan<- metric) {
	defer func() {
		conn.Close()
		connWg.Done()
	}()

	var prot Proto = textprot.TextProt{}
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	var err error

	for item := range tasks {
		start := time.Now()
		key := item.Keys[0]

		switch item.Cmd {
		case Set:
			err = prot.Set(rw, key, item.Value)
		case Add:
			err = prot.Add(rw, key, item.Value)
		case Replace:
			err = prot.Replace(rw, key, item.Value)
		case Append:
			err = prot.Append(rw, key, item.Value)
		case Prepend:
			err = prot.Prepend(rw, key, item.Value)
		case Cas:
			var cas uint64
			if _, cas, err = prot.Gets(rw, key); err == nil {
				err = prot.Cas(rw, key, item.Value, cas)
			}
		case Get:
			_, err = prot.Get(rw, key)
		case Bget:
			_, err = prot.BatchGet(rw, item.Keys)
		case Delete:
			err = prot.Delete(rw, key)
		case Touch:
			err = prot.Touch(rw, key)
		case Incr:
			_, err = prot.Incr(rw, key, 1)
		case Decr:
			_, err = prot.Decr(rw, key, 1)
		default:
			panic("Unhandled default case")
		}

		// socket is closed
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			fmt.Printf("Failed to execute request: %s, key: %s, error: %v\n", item.Cmd, key, err)
			return
		}

		metrics <- metric{
			duration: time.Since(start).Nanoseconds(),
			op:       item.Cmd,
			// server errors such as incr on a non numeric value count as misses too
			miss: err != nil,
		}
		taskPool.Put(item)
	}
}

func pickKeys(keys []string, op Op) [][]byte {
	n := 1
	if op == Bget {
		n = batchSize
	}
	out := make([][]byte, n)
	for i := range out {
		x, _ := rand.Int(rand.Reader, big.NewInt(int64(len(keys))))
		out[i] = []byte(keys[x.Int64()])
	}
	return out
}

func genData(cmd Op) []byte {
	switch cmd {
	case Set, Add, Replace, Cas:
		x, _ := rand.Int(rand.Reader, big.NewInt(9*1024+1024))
		return utils.RandData(x.Int64() + 1)
	case Append, Prepend:
		return utils.RandData(16)
	}
	return nil
}

func renderStats(t string, op Op, data []int, histogram bool) {
	if len(data) == 0 {
		fmt.Printf("\nNo %s %s\n", op.String(), t)
		return
	}
	s := GetStats(data)
	fmt.Printf("%s %s (n = %d)\n", op.String(), t, len(data))
	fmt.Printf("Min: %fms\n", s.Min)
	fmt.Printf("Max: %fms\n", s.Max)
	fmt.Printf("Avg: %fms\n", s.Avg)
	fmt.Printf("p50: %fms\n", s.P50)
	fmt.Printf("p75: %fms\n", s.P75)
	fmt.Printf("p90: %fms\n", s.P90)
	fmt.Printf("p95: %fms\n", s.P95)
	fmt.Printf("p99: %fms\n", s.P99)
	if histogram {
		PrintStats(data)
	}
}
