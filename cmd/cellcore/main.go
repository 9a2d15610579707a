// command cellcore is the operator front-end for the pick-and-place
// orchestration core: it loads config.json, wires up the cell, runs the
// motion dispatcher loop in the background, and reads single-letter
// commands from stdin.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"pickcell.dev/cell"
	"pickcell.dev/config"
)

var configPath = flag.String("config", "config.json", "path to the cell's JSON config file")

func main() {
	flag.Parse()
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cellcore: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	c, err := cell.Open(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	var stopped int32
	go c.Run(func() bool { return atomic.LoadInt32(&stopped) != 0 }, logctxCLI())

	log.Println("cellcore: ready")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch cmd {
		case "s", "status":
			printStatus(c)
		case "start":
			c.Auto.Enable()
			log.Println("auto-program enabled")
		case "stop":
			c.Auto.Disable()
			log.Println("auto-program disabled")
		case "pause":
			atomic.StoreInt32(&stopped, 1)
			log.Println("motion loop pause requested")
		case "resume":
			atomic.StoreInt32(&stopped, 0)
			go c.Run(func() bool { return atomic.LoadInt32(&stopped) != 0 }, logctxCLI())
			log.Println("motion loop resumed")
		case "r":
			c.Motion.ClearAlarm()
			log.Println("alarm cleared")
		case "q", "quit":
			atomic.StoreInt32(&stopped, 1)
			return nil
		default:
			fmt.Println("commands: s(tatus) start stop pause resume r(eset alarm) q(uit)")
		}
	}
	return scanner.Err()
}

func logctxCLI() *log.Logger {
	return log.New(os.Stderr, "[motion] ", 0)
}

func printStatus(c *cell.Cell) {
	s := c.Auto.Status()
	fmt.Printf("cycle_count=%d dr_f_found_count=%d feeder_trigger_count=%d vibration_count=%d feeding_ready=%v robot_job_prepared=%v\n",
		s.CycleCount, s.DrFFoundCount, s.FeederTrigCount, s.VibrationCount, s.FeedingReady, s.RobotJobPrepared)
	fmt.Printf("motion status_word=%d\n", c.Motion.StatusWord())
}
