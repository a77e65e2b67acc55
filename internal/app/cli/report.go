package cli

import (
	"fmt"
	"io"

	"aws-sqs-csv-utility/internal/app/drain"
	"aws-sqs-csv-utility/internal/app/load"
	"aws-sqs-csv-utility/internal/pkg/queue"
)

func reportDescribe(out io.Writer, queueURL string, depth queue.Depth) {
	fmt.Fprintf(out, "Queue: %s\n", queueURL)
	fmt.Fprintf(out, "ApproximateNumberOfMessages: %s\n", depth.Messages)
	fmt.Fprintf(out, "ApproximateNumberOfMessagesDelayed: %s\n", depth.MessagesDelayed)
	fmt.Fprintf(out, "ApproximateNumberOfMessagesNotVisible: %s\n", depth.MessagesNotVisible)
}

func reportReceive(out io.Writer, res drain.Result, deleteFromQueue, processed bool, destination string) {
	fmt.Fprintf(out, "%d messages received from queue\n", res.Received)
	if processed {
		fmt.Fprintf(out, "%d messages ignored by filter/transform\n", res.Received-res.Filtered)
	}
	fmt.Fprintf(out, "%d messages written to %s\n", res.Written, destination)
	if deleteFromQueue {
		fmt.Fprintf(out, "%d messages deleted from queue\n", res.Deleted)
		fmt.Fprintf(out, "%d messages failed to delete from queue\n", res.Received-res.Deleted)
	}
}

func reportModify(out io.Writer, res load.Result, deleteFromQueue, processed bool) {
	done, failed := "sent to", "send to"
	if deleteFromQueue {
		done, failed = "deleted from", "delete from"
	}

	fmt.Fprintf(out, "%d messages read from file\n", res.Read)
	if processed {
		fmt.Fprintf(out, "%d messages ignored by filter/transform\n", res.Read-res.Filtered)
	}
	fmt.Fprintf(out, "%d messages %s queue\n", res.Processed, done)
	fmt.Fprintf(out, "%d messages failed to %s queue\n", res.Read-res.Processed, failed)
}
