package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cchalm/chatwidget/internal/ai"
	"github.com/cchalm/chatwidget/internal/attachment"
)

var sendFlags struct {
	image string
	file  string
}

var sendCmd = &cobra.Command{
	Use:   "send [TEXT]",
	Short: "Send one message and print the reply",
	Long: `Sends a single message, prints the reply and appends both to the saved
transcript. Exits with status 1 if the request fails.`,
	Args: cobra.ArbitraryArgs,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendFlags.image, "image", "", "Image to attach")
	sendCmd.Flags().StringVar(&sendFlags.file, "file", "", "File of any type to attach")
	sendCmd.MarkFlagsMutuallyExclusive("image", "file")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupContext()
	defer cancel()

	view := newTerminalView(cmd.OutOrStdout())
	view.quietReset = true
	a, err := newApp(ctx, view)
	if err != nil {
		return err
	}
	defer a.Close()
	d := a.dispatcher

	// The reply is appended to the saved transcript, which isn't echoed
	d.Restore()

	switch {
	case sendFlags.image != "":
		err = d.Buffer().AttachFile(sendFlags.image, attachment.Drop)
	case sendFlags.file != "":
		err = d.Buffer().AttachFile(sendFlags.file, attachment.FilePicker)
	}
	if err != nil {
		return err
	}

	req, err := d.Send(ctx, strings.Join(args, " "))
	if errors.Is(err, ai.ErrInvalidInput) {
		return fmt.Errorf("nothing to send: provide TEXT or an attachment")
	}
	if err != nil {
		return err
	}
	<-req.Done()

	st, _ := req.Settlement()
	logger.Debug().Str("request_id", st.RequestID).Stringer("outcome", st.Outcome).Msg("Send finished")
	if st.Outcome == ai.OutcomeFailed {
		return fmt.Errorf("request failed: %s", st.Message)
	}
	return nil
}
