/*
 * doc.go, part of semifit.
 *
 *
 * Copyright 2024 Raul Mera <rmera{at}chemDOThelsinkiDOTfi>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 *
 * Gochem is developed at the laboratory for instruction in Swedish, Department of Chemistry,
 * University of Helsinki, Finland.
 *
 *
 */
/***Dedicated to the long life of the Ven. Khenpo Phuntzok Tenzin Rinpoche***/

/*Package semifit fits the atomic parameters of semi-empirical quantum chemistry methods (PM3, MNDO and
relatives) to a set of reference molecular energies.

The fit treats the quantum chemistry program (the "oracle") as a black box: for a given set of parameters,
the program is run on all the molecules of the reference set, the energies it reports are compared to the
reference energies, and an optimizer changes the parameters to make the difference smaller.

	**semifit packages**

    semifit (this package): parameter keys (Species, Property), parameter sets and their JSON files,
	the affine Codec between optimizer vectors and physical parameters, molecules and XYZ files.

    mndo: runs an MNDO-style program on a molecule input file with a given parameter file, and
	parses the per-molecule output blocks.

    eval: a pool of workers, each with its own scratch directory, that evaluates many parameter
	vectors concurrently and returns the results in order.

    objective: the loss (mean absolute error with a penalty for failed molecules) and its central
	finite-difference gradient.

    optim: box-constrained L-BFGS minimization, No-U-Turn Hamiltonian Monte Carlo sampling with
	dual averaging, k-fold splits.

    dataset: reference CSV + XYZ loading, with an explicit on-disk cache.

    diag: diagnostics sinks (JSON lines, Prometheus) and chain plots.

    fitter: puts all of the above together; used by the semifit command.

Energies are in kcal/mol throughout.
*/
package semifit
