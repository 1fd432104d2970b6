package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/Wyydra/yacall/internal/client"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/spf13/cobra"
)

var (
	flagVideo   bool
	flagChat    string
	flagAnswer  bool
	flagVerbose bool
)

var placeCmd = &cobra.Command{
	Use:   "place <user>...",
	Short: "Call one or more users and stay in the call",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		p, err := startParticipant(ctx)
		if err != nil {
			return err
		}

		t := domain.CallTypeVoice
		if flagVideo {
			t = domain.CallTypeVideo
		}
		invited := make([]domain.UserID, 0, len(args))
		for _, a := range args {
			invited = append(invited, domain.UserID(a))
		}

		h, err := p.manager.Place(ctx, flagChat, t, invited)
		if err != nil {
			return err
		}
		fmt.Printf("Ringing %s\n", strings.Join(args, ", "))
		return p.attend(ctx, h)
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <call-id>",
	Short: "Join an ongoing call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		p, err := startParticipant(ctx)
		if err != nil {
			return err
		}
		h, err := p.manager.Open(ctx, domain.CallID(args[0]))
		if err != nil {
			return err
		}
		return p.attend(ctx, h)
	},
}

var leaveCmd = &cobra.Command{
	Use:   "leave <call-id>",
	Short: "Leave or decline a call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		return client.NewAPI(cfg.Server, domain.UserID(cfg.User), nil).LeaveCall(ctx, domain.CallID(args[0]))
	},
}

var ongoingCmd = &cobra.Command{
	Use:   "ongoing",
	Short: "List the calls you are part of",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		api := client.NewAPI(cfg.Server, domain.UserID(cfg.User), nil)
		ids, err := api.OngoingCalls(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if !flagVerbose {
				fmt.Println(id)
				continue
			}
			info, err := api.GetCallInfo(ctx, id)
			if err != nil {
				fmt.Printf("%s  (%v)\n", id, err)
				continue
			}
			fmt.Printf("%s  %s from %s  joined: %s\n", id, info.Type, info.Caller, joinUsers(info.Members.RealMembers()))
		}
		return nil
	},
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Wait for incoming calls",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		rings := make(chan domain.RingPayload, 8)
		p, err := startParticipant(ctx, client.WithRingHandler(func(r domain.RingPayload) {
			select {
			case rings <- r:
			default:
			}
		}))
		if err != nil {
			return err
		}
		fmt.Println("Waiting for calls...")

		for {
			select {
			case <-ctx.Done():
				return nil
			case r := <-rings:
				fmt.Printf("Incoming %s call %s from %s\n", r.Type, r.Call, r.Caller)
				if !flagAnswer {
					continue
				}
				h, err := p.manager.Open(ctx, r.Call)
				if err != nil {
					fmt.Printf("Cannot open call: %v\n", err)
					continue
				}
				if err := p.attend(ctx, h); err != nil {
					return err
				}
			}
		}
	},
}

func init() {
	placeCmd.Flags().BoolVar(&flagVideo, "video", false, "place a video call")
	placeCmd.Flags().StringVar(&flagChat, "chat", "", "chat the call belongs to")
	listenCmd.Flags().BoolVar(&flagAnswer, "answer", false, "join incoming calls")
	ongoingCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "show call details")
}

func startParticipant(ctx context.Context, opts ...client.ManagerOption) (*participant, error) {
	cfg, err := loadClient()
	if err != nil {
		return nil, err
	}
	return connect(ctx, cfg, opts...)
}

func joinUsers(ids []domain.UserID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}
