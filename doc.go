/*
Package ddns keeps the address records of a Porkbun domain pointed at the caller's public IP addresses.

Usage will usually start with [ddns.New],
which returns the DDNSClient implementation.
New requires a domain name which will be updated and a [RecordService],
normally registered with [UsingPorkbun].
Additional client configuration options are listed in the docs for New.

The two building blocks can also be used on their own:
a [Resolver] (see [NewResolver]) produces the desired addresses
and a [Reconciler] converges the records of a [Target] towards them.
*/
package ddns
