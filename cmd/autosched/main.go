package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/atul-ranjan/pipesched"
)

func main() {
	parallelism := flag.Int64("parallelism", 16, "target core count")
	vecLen := flag.Int64("vec_len", 8, "fallback vector lane count")
	fastMemSize := flag.Int64("fast_mem_size", 1024, "fast-memory budget in bytes")
	balance := flag.Int64("balance", 10, "advisory compute-vs-memory weight")
	verbose := flag.Bool("v", false, "print progress to stderr")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <pipeline.json>\n", os.Args[0])
		os.Exit(1)
	}

	pj, err := ReadPipeline(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading pipeline: %v\n", err)
		os.Exit(1)
	}

	env, outputs, err := BuildEnvironment(pj)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error building pipeline: %v\n", err)
		os.Exit(1)
	}

	params := pipesched.DefaultMachineParams()
	if pj.Parallelism > 0 {
		params.Parallelism = pj.Parallelism
	} else {
		params.Parallelism = *parallelism
	}
	if pj.VecLen > 0 {
		params.VecLen = pj.VecLen
	} else {
		params.VecLen = *vecLen
	}
	if pj.FastMemSize > 0 {
		params.FastMemSize = pj.FastMemSize
	} else {
		params.FastMemSize = *fastMemSize
	}
	if pj.Balance > 0 {
		params.Balance = pj.Balance
	} else {
		params.Balance = *balance
	}

	target := pipesched.NewTarget(params)

	if *verbose {
		fmt.Fprintf(os.Stderr, "Pipeline: %d functions, %d outputs\n", len(env), len(outputs))
	}

	result, err := pipesched.GenerateSchedules(outputs, env, target)
	if err != nil {
		if pipesched.IsUserError(err) {
			fmt.Fprintf(os.Stderr, "invalid pipeline: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "error generating schedule: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(result.Report)
}
