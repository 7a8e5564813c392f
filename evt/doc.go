/*
Package evt defines data change events, a ledger interface and event subscriptions.

Data sources record every write as event with a generic command:
   '+' to create a new record, the argument is the record document
   '*' to modify a record, the argument is the json patch that was applied
   '-' to delete a record

Each event has a topic and key. The topic is the spinal case resource name and the key the record
id as string. A ledger is a strictly ordered sequence of events that assigns each event an id and
a revision. A revision is a timestamp with millisecond granularity. It is usually the arrival time
of the write but cannot be before the latest revision in the ledger.

Hub connections subscribe to topics with watches and receive buffered events as updates.
*/
package evt
