package election

import "github.com/mlindqvist/zkdistributed/zkclient"

// waitForDeletion blocks until path no longer exists, arming a watch
// first so the disappearance can never be missed between the check and
// the watch registration. It returns true once the node is confirmed
// gone, or when arming the watch or checking existence fails; it returns
// false if interrupted by session loss or close.
func waitForDeletion(client zkclient.Client, path string, sessionExpired, closed <-chan struct{}) bool {
	for {
		events, unsubscribe, err := client.Watch(path)
		if err != nil {
			return true
		}
		exists, err := client.Exists(path)
		if err != nil || !exists {
			unsubscribe()
			return true
		}

		select {
		case <-events:
			unsubscribe()
		case <-sessionExpired:
			unsubscribe()
			return false
		case <-closed:
			unsubscribe()
			return false
		}
	}
}

// waitForCreation blocks until path exists, arming a watch first for the
// same reason waitForDeletion does. It returns true once the node is
// confirmed present, false if interrupted.
func waitForCreation(client zkclient.Client, path string, sessionExpired, closed <-chan struct{}) bool {
	for {
		events, unsubscribe, err := client.Watch(path)
		if err != nil {
			return false
		}
		exists, err := client.Exists(path)
		if err != nil {
			unsubscribe()
			return false
		}
		if exists {
			unsubscribe()
			return true
		}

		select {
		case <-events:
			unsubscribe()
		case <-sessionExpired:
			unsubscribe()
			return false
		case <-closed:
			unsubscribe()
			return false
		}
	}
}
