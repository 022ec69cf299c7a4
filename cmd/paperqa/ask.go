package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"paperqa/internal/domain"
	"paperqa/internal/service"
)

var (
	askQuestion string
	askState    int
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Ask questions on the terminal",
	Long: `Ask a question, then choose how to go on after every answer:
0 starts a new topic, 1 asks a follow-up on the same paper, 2 exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		chat, closer, err := newChat(ctx, cfg, logger, sessionID)
		if err != nil {
			return err
		}
		defer closer.Close()

		state, err := domain.ParseSessionState(askState)
		if err != nil {
			return err
		}
		return askLoop(cmd, chat, state, askQuestion)
	},
}

func init() {
	askCmd.Flags().StringVarP(&askQuestion, "question", "q", "", "First question (read from stdin when empty)")
	askCmd.Flags().IntVar(&askState, "state", int(domain.FreshTopic), "State of the first question: 0 new topic, 1 follow-up")
	askCmd.Flags().StringVar(&sessionID, "session", "", "Keep the transcript in the transcript store under this id")
}

func askLoop(cmd *cobra.Command, chat *service.Chat, state domain.SessionState, question string) error {
	in := bufio.NewScanner(cmd.InOrStdin())
	out := cmd.OutOrStdout()
	readLine := func(prompt string) (string, error) {
		fmt.Fprint(out, prompt)
		if !in.Scan() {
			if err := in.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return strings.TrimSpace(in.Text()), nil
	}

	for state != domain.Terminated {
		if question == "" {
			var err error
			if question, err = readLine("Question: "); err != nil {
				return ignoreEOF(err)
			}
			if question == "" {
				continue
			}
		}
		reply, err := chat.Ask(cmd.Context(), question, state)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidState) {
				fmt.Fprintln(out, "Error:", err)
				state, question = domain.FreshTopic, ""
				continue
			}
			return err
		}
		if state == domain.FreshTopic && reply.Paper != nil && !reply.Fallback {
			fmt.Fprintf(out, "[paper %s, score %.3f]\n", reply.Paper.Document.DocumentID, reply.Paper.Score)
		}
		fmt.Fprintln(out, reply.Message.Content)

		question = ""
		state, err = readState(readLine)
		if err != nil {
			return ignoreEOF(err)
		}
	}
	return nil
}

func readState(readLine func(string) (string, error)) (domain.SessionState, error) {
	for {
		line, err := readLine("Next (0 new topic, 1 follow-up, 2 exit): ")
		if err != nil {
			return domain.Terminated, err
		}
		code, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		if state, err := domain.ParseSessionState(code); err == nil {
			return state, nil
		}
	}
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
