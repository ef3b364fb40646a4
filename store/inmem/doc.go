// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

/*
Package inmem implements the store bucket interface. This implementation is meant
to help get an instance of cerberus up and running quickly without a need to setup
a dedicated DB. Since the current implementation is not scalable, it is recommended
for test environments only.
*/
package inmem
